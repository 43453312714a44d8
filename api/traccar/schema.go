package traccar

type (
	Device struct {
		ID         int    `json:"id,omitempty"`
		Name       string `json:"name,omitempty"`
		UniqueID   string `json:"uniqueId"`
		Status     string `json:"status,omitempty"`
		Disabled   bool   `json:"disabled,omitempty"`
		PositionID int    `json:"positionId,omitempty"`
		LastUpdate string `json:"lastUpdate,omitempty"`
	}

	Position struct {
		ID        int     `json:"id,omitempty"`
		DeviceID  int     `json:"deviceId,omitempty"`
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		Altitude  float64 `json:"altitude,omitempty"`
		Speed     float64 `json:"speed,omitempty"` // knots
		Course    float64 `json:"course,omitempty"`
		Valid     bool    `json:"valid,omitempty"`
		FixTime   string  `json:"fixTime,omitempty"`
	}

	Command struct {
		ID          int    `json:"id,omitempty"`
		DeviceID    int    `json:"deviceId"`
		Type        string `json:"type"`
		Description string `json:"description,omitempty"`
	}

	Devices   []Device
	Positions []Position
)

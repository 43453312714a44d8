package settings

type (
	// Credentials used to authenticate against an upstream API,
	// either basic auth (UserID + Token) or a bearer token.
	Credentials struct {
		UserID string `json:"user_id,omitempty"`
		Token  string `json:"token,omitempty"`
	}

	// DialSettings holds the configuration needed to talk to an upstream API.
	DialSettings struct {
		Endpoint    string       `json:"endpoint,omitempty"`
		UserAgent   string       `json:"user_agent,omitempty"`
		Credentials *Credentials `json:"credentials,omitempty"`
	}
)

func (ds *DialSettings) Clone() DialSettings {
	c := DialSettings{
		Endpoint:  ds.Endpoint,
		UserAgent: ds.UserAgent,
	}
	if ds.Credentials != nil {
		cred := *ds.Credentials
		c.Credentials = &cred
	}
	return c
}

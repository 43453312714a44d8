package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/txsvc/stdlib/v2"

	"github.com/safetrack-gps/safetrack/internal"
)

const (
	defaultDeviceKey = "sim-device-01"

	positionTopic = "positions/%s"
	commandTopic  = "commands/%s"
)

var (
	shutdown bool = false

	// a short walk that starts inside a 35m zone, leaves it, and comes back.
	// offsets in meters relative to the zone center.
	walk = [][2]float64{
		{0, 0},
		{10, 0},
		{25, 5},
		{40, 10}, // outside
		{60, 15}, // still outside
		{20, 5},  // back inside
		{5, 0},
	}
)

type (
	positionReport struct {
		DeviceKey string  `json:"deviceKey"`
		EventTime int64   `json:"eventTime"`
		Lat       float64 `json:"lat"`
		Lon       float64 `json:"lon"`
		SpeedKmh  float64 `json:"speedKmh"`
	}
)

func (p *positionReport) String() string {
	return fmt.Sprintf("%s,[%f,%f]", p.DeviceKey, p.Lat, p.Lon)
}

func init() {
	// setup logging
	internal.SetLogLevel()

	// setup shutdown handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		shutdown = true
		log.Warn().Msg("shutting down")
	}()
}

func main() {
	deviceKey := stdlib.GetString("DEVICE_KEY", defaultDeviceKey)
	centerLat := 19.4326
	centerLon := -99.1332

	cl := internal.CreateMqttClient(
		stdlib.GetString("mqtt_protocol", "tcp"),
		stdlib.GetString("mqtt_host", "localhost"),
		stdlib.GetString("mqtt_port", "1883"),
		deviceKey,
		stdlib.GetString("mqtt_user", ""),
		stdlib.GetString("mqtt_password", ""),
	)
	if token := cl.Connect(); token.Wait() && token.Error() != nil {
		log.Fatal().Err(token.Error()).Msg(token.Error().Error())
	}
	defer cl.Disconnect(250)

	// listen for cutoff/resume commands addressed to this device
	topic := fmt.Sprintf(commandTopic, deviceKey)
	if token := cl.Subscribe(topic, internal.AtLeastOnce, receiveCommand); token.Wait() && token.Error() != nil {
		log.Fatal().Err(token.Error()).Msg(token.Error().Error())
	}

	log.Info().Str("device", deviceKey).Msg("simulating vehicle")

	tick := 0
	for !shutdown {
		report := drive(deviceKey, centerLat, centerLon, tick)

		payload, _ := json.Marshal(report)
		if token := cl.Publish(fmt.Sprintf(positionTopic, deviceKey), internal.AtMostOnce, false, payload); token.Wait() && token.Error() != nil {
			log.Fatal().Err(token.Error()).Msg(token.Error().Error())
		}

		log.Debug().Str("device", deviceKey).Str("pos", report.String()).Msg(fmt.Sprintf("report #%d", tick))

		tick++
		time.Sleep(4 * time.Second)
	}

	log.Warn().Str("device", deviceKey).Msg("stopping vehicle")
}

func drive(deviceKey string, centerLat, centerLon float64, tick int) positionReport {
	step := walk[tick%len(walk)]

	// ~111.2 km per degree of latitude
	const metersPerDegree = 111194.9

	return positionReport{
		DeviceKey: deviceKey,
		EventTime: stdlib.Now(),
		Lat:       centerLat + step[0]/metersPerDegree,
		Lon:       centerLon + step[1]/metersPerDegree,
		SpeedKmh:  12,
	}
}

func receiveCommand(client mqtt.Client, msg mqtt.Message) {
	log.Logger.Info().Str("topic", msg.Topic()).Str("cmd", string(msg.Payload())).Msg(fmt.Sprintf("message id %d", msg.MessageID()))
}

package main

import (
	"flag"
	"log"
	"os"

	"github.com/robotalks/probe.go/pkg/env"
	fx "github.com/robotalks/probe.go/pkg/framework"
	"github.com/robotalks/probe.go/pkg/telemetry/mqtt"
)

var (
	mqttURL = env.DefaultMQTTBrokerURL
)

func init() {
	if val := os.Getenv("PROBE_MQTT_URL"); val != "" {
		mqttURL = val
	}
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL.")
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	q, err := mqtt.NewQueueFromURL(mqttURL)
	if err != nil {
		log.Fatalln(err)
	}

	q.Sub("#", mqtt.Handler(func(topic string, payload []byte) {
		msg, err := mqtt.Decode(topic, payload)
		if err != nil {
			log.Printf("%s: bad message: %v", topic, err)
			return
		}
		switch {
		case msg.Burst != nil:
			log.Printf("%s: [SampleBurst] %s", topic, msg.Burst.String())
		case msg.Session != nil:
			log.Printf("%s: [SessionEvent] %s", topic, msg.Session.String())
		case msg.Meta != nil:
			log.Printf("%s: %s", topic, string(payload))
		default:
			log.Printf("%s: offline", topic)
		}
	}))

	if err := fx.NewRunner().HandleSignals().Go(q).Wait(); err != nil {
		log.Fatalln(err)
	}
}

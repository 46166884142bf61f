// Command pathway_logger copies positioner status from the bridge's
// websocket into InfluxDB.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/gorilla/websocket"
	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
	"github.com/w1xm/pathway_interface/internal/logger"
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	log := logger.New(os.Stderr, logger.InfoLevel, os.Getenv("ENV") == "development")
	logger.SetDefault(log)

	client := influxdb2.NewClient(getenv("INFLUX_SERVER", "http://localhost:9999"), os.Getenv("INFLUX_TOKEN"))
	defer client.Close()
	writeApi := client.WriteApi(getenv("INFLUX_ORG", "w1xm"), getenv("INFLUX_BUCKET", "pathway.raw"))
	defer writeApi.Close()
	go func() {
		for err := range writeApi.Errors() {
			log.Warn("influx write failed", "err", err)
		}
	}()
	url := getenv("PATHWAY_ADDRESS", "ws://localhost:8502/api/ws")
	for {
		if err := logData(writeApi, url); err != nil {
			log.Warn("status stream ended", "url", url, "err", err)
		}
		time.Sleep(1 * time.Second)
	}
}

// flattenStatus turns nested JSON into dotted field names.
func flattenStatus(fields map[string]interface{}, status interface{}, prefix string) {
	switch status := status.(type) {
	case map[string]interface{}:
		for k, v := range status {
			flattenStatus(fields, v, prefix+"."+k)
		}
	case []interface{}:
		for k, v := range status {
			flattenStatus(fields, v, fmt.Sprintf("%s.%d", prefix, k))
		}
	case nil:
	default:
		if prefix == "" {
			return
		}
		fields[prefix[1:]] = status
	}
}

func logData(writeApi api.WriteApi, url string) error {
	defer writeApi.Flush()
	var dialer websocket.Dialer
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	logger.Default().Info("connected", "url", url)
	for {
		var status interface{}
		if err := conn.ReadJSON(&status); err != nil {
			return err
		}
		fields := make(map[string]interface{})
		flattenStatus(fields, status, "")
		if len(fields) == 0 {
			continue
		}
		writeApi.WritePoint(influxdb2.NewPoint("pathway.status", nil, fields, time.Now()))
	}
}

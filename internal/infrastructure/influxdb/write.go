package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteBatteryLevel records a device's battery charge at registration time.
//
// The write is non-blocking; points are batched and sent asynchronously.
// Tags are low-cardinality routing data; the connection identity goes in the
// fields so short-lived connections do not explode the tag index.
//
// Example:
//
//	client.WriteBatteryLevel(rec.ID, rec.Name, rec.System, rec.BatteryLevel)
func (c *Client) WriteBatteryLevel(connectionID, name, system string, level float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"device_battery",
		map[string]string{
			"name":   name,
			"system": system,
		},
		map[string]interface{}{
			"level":         level,
			"connection_id": connectionID,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

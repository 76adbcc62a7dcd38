// internal/link/ble/uuid.go
package ble

import "tinygo.org/x/bluetooth"

// WitMotion BLE 5.0 GATT layout.
var (
	serviceUUID = must(bluetooth.ParseUUID("0000ffe5-0000-1000-8000-00805f9a34fb"))
	notifyUUID  = must(bluetooth.ParseUUID("0000ffe4-0000-1000-8000-00805f9a34fb"))
	writeUUID   = must(bluetooth.ParseUUID("0000ffe9-0000-1000-8000-00805f9a34fb"))
)

func must[T any](value T, err error) T {
	if err != nil {
		panic(err)
	}
	return value
}

// Package influxdb provides the optional battery telemetry sink.
//
// When enabled, a battery gauge is written each time a device registers, so
// fleet battery health can be charted without any query load on the live
// registry. Writes are non-blocking and batched; failures surface through an
// async error callback and never affect the registration path.
package influxdb

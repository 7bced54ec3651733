// Package goble implements printer.Adapter over github.com/go-ble/ble,
// talking HCI directly. It is Linux only and needs CAP_NET_ADMIN (or root),
// but unlike the D-Bus path it performs a real ATT MTU exchange and reports
// characteristic properties.
package goble

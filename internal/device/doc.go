// Package device owns device identity and bus unit allocation.
//
// The Registry maps every known device by hardware address and by bus unit
// (1..255). Both keys are unique. Devices come from static records at
// startup or from auto-discovery: a report from an unknown address is
// admitted at the lowest free unit and its record is saved through a
// debounced writer.
//
// # Events
//
// Every mutation emits one event to subscribers, in mutation order:
//
//	device:add     device registered (static record or auto-discovery)
//	device:change  report applied; Changes holds the changed fields
//	device:remove  operator removal
//
// # Bus view
//
// HandleBusRequest serves Modbus read requests (0x03/0x04) over a fixed
// register map per unit; see the Reg* constants.
//
// # Persistence
//
// Records are kept in a RecordStore: YAMLStore rewrites the devices list of
// the configuration file, SQLiteStore uses the device_records table.
//
// # Usage
//
//	reg := device.NewRegistry(device.Options{AutoDiscovery: true, Remember: true, Store: store})
//	reg.SetLogger(logger)
//	reg.LoadRecords(records)
//	cancel := reg.Subscribe(hub.HandleEvent)
//	defer cancel()
//
//	if err := reg.HandleReport(report); errors.Is(err, device.ErrAdmissionFailed) {
//	    // every unit is bound; ingestion continues
//	}
package device

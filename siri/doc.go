// Package siri renders the filtered vehicle display set as a SIRI
// (Service Interface for Real-time Information, CEN/TS 15531)
// VehicleMonitoring delivery, the shape downstream display collaborators
// consume. Only the VM module is produced; the envelope keeps the sibling
// delivery arrays so consumers see a complete ServiceDelivery.
package siri

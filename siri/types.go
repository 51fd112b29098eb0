package siri

import (
	transittypes "github.com/theoremus-urban-solutions/transit-types/siri"
)

// SiriResponse is the top-level SIRI response structure.
type SiriResponse struct {
	Siri SiriServiceDelivery `json:"Siri"`
}

// SiriServiceDelivery wraps the ServiceDelivery element.
type SiriServiceDelivery struct {
	ServiceDelivery ServiceDelivery `json:"ServiceDelivery"`
}

// ServiceDelivery carries the delivery arrays. Only VehicleMonitoring is
// populated here; the sibling array stays present but empty so the envelope
// keeps the standard shape.
type ServiceDelivery struct {
	ResponseTimestamp          string                                   `json:"ResponseTimestamp"`
	ProducerRef                string                                   `json:"ProducerRef,omitempty"`
	VehicleMonitoringDelivery  []VehicleMonitoring                      `json:"VehicleMonitoringDelivery"`
	EstimatedTimetableDelivery []transittypes.EstimatedTimetableDelivery `json:"EstimatedTimetableDelivery"`
}

// VehicleMonitoring is one VM delivery.
type VehicleMonitoring struct {
	ResponseTimestamp string                 `json:"ResponseTimestamp"`
	ValidUntil        string                 `json:"ValidUntil,omitempty"`
	VehicleActivity   []VehicleActivityEntry `json:"VehicleActivity"`
}

// VehicleActivityEntry is a single vehicle's activity record.
type VehicleActivityEntry struct {
	RecordedAtTime          string                  `json:"RecordedAtTime"`
	ValidUntilTime          string                  `json:"ValidUntilTime,omitempty"`
	MonitoredVehicleJourney MonitoredVehicleJourney `json:"MonitoredVehicleJourney"`
}

// MonitoredVehicleJourney describes one monitored vehicle.
type MonitoredVehicleJourney struct {
	LineRef                 string                                `json:"LineRef"`
	FramedVehicleJourneyRef *transittypes.FramedVehicleJourneyRef `json:"FramedVehicleJourneyRef,omitempty"`
	OriginRef               string                                `json:"OriginRef,omitempty"`
	OriginName              string                                `json:"OriginName,omitempty"`
	DestinationRef          string                                `json:"DestinationRef,omitempty"`
	DestinationName         string                                `json:"DestinationName,omitempty"`
	Monitored               bool                                  `json:"Monitored"`
	DataSource              string                                `json:"DataSource"`
	VehicleLocation         VehicleLocation                       `json:"VehicleLocation"`
	VehicleRef              string                                `json:"VehicleRef"`
	MonitoredCall           *MonitoredCall                        `json:"MonitoredCall,omitempty"`
	IsCompleteStopSequence  bool                                  `json:"IsCompleteStopSequence"`
}

// VehicleLocation is the vehicle's reported WGS84 position.
type VehicleLocation struct {
	Latitude  float64 `json:"Latitude"`
	Longitude float64 `json:"Longitude"`
}

// MonitoredCall describes the stop the vehicle last reported against.
type MonitoredCall struct {
	StopPointRef  string `json:"StopPointRef"`
	Order         *int   `json:"Order,omitempty"`
	StopPointName string `json:"StopPointName,omitempty"`
}

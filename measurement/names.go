package measurement

// Well-known measurement names. The pipeline treats all names as opaque
// identifiers except for the three the location synthesizer combines.
const (
	// Latitude is the vehicle GPS latitude in degrees.
	Latitude = "latitude"

	// Longitude is the vehicle GPS longitude in degrees.
	Longitude = "longitude"

	// VehicleSpeed is the vehicle speed in km/h.
	VehicleSpeed = "vehicle_speed"
)

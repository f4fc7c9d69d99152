package vehicle

// Class is the category of vehicle a trip is requested for. It decides the
// fare table row and the routing profile.
type Class string

const (
	Motorbike Class = "MOTORBIKE" // two-seater
	Car4      Class = "CAR_4"     // four-seater
	Car7      Class = "CAR_7"     // seven-seater
)

// All lists every supported class in display order.
var All = []Class{Motorbike, Car4, Car7}

// IsValid validates the vehicle class
func (c Class) IsValid() bool {
	switch c {
	case Motorbike, Car4, Car7:
		return true
	}
	return false
}

// AvoidsMotorways reports whether routes for this class must exclude motorway segments.
func (c Class) AvoidsMotorways() bool {
	return c == Motorbike
}

func (c Class) String() string {
	return string(c)
}

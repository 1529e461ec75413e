package ctdf

type NetworkID uint32
type LineID uint32
type RouteID uint32
type StopAreaID uint32
type StopPointID uint32

type Network struct {
	ID    NetworkID
	URI   string
	Name  string
	Lines []LineID
}

type Line struct {
	ID      LineID
	URI     string
	Code    string
	Name    string
	Colour  string
	Network NetworkID
	Routes  []RouteID
}

type Route struct {
	ID   RouteID
	URI  string
	Name string
	Line LineID
	// Trips only lists base trips
	Trips []TripID
}

type StopArea struct {
	ID         StopAreaID
	URI        string
	Name       string
	StopPoints []StopPointID
}

type StopPoint struct {
	ID       StopPointID
	URI      string
	Name     string
	StopArea StopAreaID
}

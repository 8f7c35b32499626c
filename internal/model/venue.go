package model

// Venue is one entry of the external venue directory.
type Venue struct {
	ID   string  `json:"id" yaml:"id"`
	Name string  `json:"name" yaml:"name"`
	URL  string  `json:"url" yaml:"url"`
	Area string  `json:"area,omitempty" yaml:"area,omitempty"`
	Lat  float64 `json:"lat,omitempty" yaml:"lat,omitempty"`
	Lng  float64 `json:"lng,omitempty" yaml:"lng,omitempty"`
}

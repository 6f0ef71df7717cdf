package weather

// openMeteoResponse mirrors the subset of the Open-Meteo forecast
// payload we request
type openMeteoResponse struct {
	Current struct {
		Temperature2m *float64 `json:"temperature_2m"`
		WindSpeed10m  *float64 `json:"wind_speed_10m"`
	} `json:"current"`
	Daily struct {
		Time                        []string   `json:"time"`
		Temperature2mMax            []*float64 `json:"temperature_2m_max"`
		Temperature2mMin            []*float64 `json:"temperature_2m_min"`
		PrecipitationProbabilityMax []*float64 `json:"precipitation_probability_max"`
		WindSpeed10mMax             []*float64 `json:"wind_speed_10m_max"`
	} `json:"daily"`
}

type CurrentConditions struct {
	TempC   *float64 `json:"tempC"`
	WindKph *float64 `json:"windKph"`
}

type TodayConditions struct {
	TmaxC *float64 `json:"tmaxC"`
	TminC *float64 `json:"tminC"`
	// probability as a 0..1 fraction
	PrecipProb *float64 `json:"precipProb"`
	WindMaxKph *float64 `json:"windMaxKph"`
}

type Forecast struct {
	Provider string            `json:"provider"`
	Current  CurrentConditions `json:"current"`
	Today    TodayConditions   `json:"today"`
}

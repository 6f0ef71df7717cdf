package athlete

import "errors"

var ErrAthleteNotFound = errors.New("athlete not found")

// Athlete is the current physiological snapshot - one row per athlete,
// overwritten in place whenever newer observations supersede it.
// Zero values mean unknown (an athlete without a known FTP gets no
// power targets, not a zero-watt band).
type Athlete struct {
	ID        int     `json:"id"`
	Name      string  `json:"name"`
	Sex       string  `json:"sex"`
	Age       int     `json:"age"`
	HeightCm  float64 `json:"heightCm"`
	WeightKg  float64 `json:"weightKg"`
	RestingHR float64 `json:"restingHr"`
	VO2Max    float64 `json:"vo2max"`
	FTPw      float64 `json:"ftpW"`
}

// UpdateParams carries a partial athlete update; nil fields are left
// untouched (last-write-wins per field)
type UpdateParams struct {
	Age       *int     `json:"age"`
	HeightCm  *float64 `json:"heightCm"`
	WeightKg  *float64 `json:"weightKg"`
	RestingHR *float64 `json:"restingHr"`
	VO2Max    *float64 `json:"vo2max"`
	FTPw      *float64 `json:"ftpW"`
}

func (p UpdateParams) Empty() bool {
	return p.Age == nil && p.HeightCm == nil && p.WeightKg == nil &&
		p.RestingHR == nil && p.VO2Max == nil && p.FTPw == nil
}

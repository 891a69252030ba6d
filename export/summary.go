package export

import "math"

// npWindow is the rolling window, in samples, for normalized power.
const npWindow = 30

// Summary holds whole-activity aggregates over the record samples.
type Summary struct {
	DurationS     float64  `json:"duration_s"`
	AvgPowerW     float64  `json:"avg_power_w"`
	NPW           float64  `json:"np_w"`
	MaxPowerW     float64  `json:"max_power_w"`
	AvgHRBPM      float64  `json:"avg_hr_bpm"`
	MaxHRBPM      float64  `json:"max_hr_bpm"`
	AvgCadenceRPM float64  `json:"avg_cadence_rpm"`
	MaxCadenceRPM float64  `json:"max_cadence_rpm"`
	TotalWorkKJ   float64  `json:"total_work_kj"`
	FTPW          *float64 `json:"ftp_w,omitempty"`
	IF            *float64 `json:"if,omitempty"`
	TSSLike       *float64 `json:"tss_like,omitempty"`
}

// Summarize aggregates samples. Intensity factor and TSS are only set when
// ftp is positive.
func Summarize(samples []Sample, ftp float64) Summary {
	var power, hr, cad []float64
	for _, s := range samples {
		if s.PowerW != nil {
			power = append(power, *s.PowerW)
		}
		if s.HRBPM != nil {
			hr = append(hr, *s.HRBPM)
		}
		if s.CadenceRPM != nil {
			cad = append(cad, *s.CadenceRPM)
		}
	}

	duration := 0.0
	if len(samples) > 1 {
		duration = samples[len(samples)-1].ElapsedS - samples[0].ElapsedS
	}
	if duration <= 0 {
		duration = float64(len(samples))
	}

	s := Summary{
		DurationS:     duration,
		AvgPowerW:     mean(power),
		NPW:           normalizedPower(power),
		MaxPowerW:     maxOf(power),
		AvgHRBPM:      mean(hr),
		MaxHRBPM:      maxOf(hr),
		AvgCadenceRPM: mean(cad),
		MaxCadenceRPM: maxOf(cad),
		TotalWorkKJ:   totalWorkKJ(samples),
	}
	if ftp > 0 {
		ifv := s.NPW / ftp
		tss := (duration / 3600.0) * ifv * ifv * 100.0
		s.FTPW, s.IF, s.TSSLike = &ftp, &ifv, &tss
	}
	return s
}

// totalWorkKJ integrates power over time. Gaps over 5s, and non-increasing
// timestamps, count as one second.
func totalWorkKJ(samples []Sample) float64 {
	work := 0.0
	for i := 1; i < len(samples); i++ {
		prev := samples[i-1]
		if prev.PowerW == nil {
			continue
		}
		delta := samples[i].Timestamp.Sub(prev.Timestamp).Seconds()
		if delta <= 0 || delta > 5 {
			delta = 1
		}
		work += *prev.PowerW * delta
	}
	if work == 0 {
		for _, s := range samples {
			if s.PowerW != nil {
				work += *s.PowerW
			}
		}
	}
	return work / 1000.0
}

func normalizedPower(power []float64) float64 {
	if len(power) < npWindow {
		return mean(power)
	}
	sum := 0.0
	for _, p := range power[:npWindow] {
		sum += p
	}
	total, count := 0.0, 0
	for i := npWindow - 1; i < len(power); i++ {
		if i >= npWindow {
			sum += power[i] - power[i-npWindow]
		}
		total += math.Pow(sum/npWindow, 4)
		count++
	}
	return math.Pow(total/float64(count), 0.25)
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func maxOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := values[0]
	for _, v := range values[1:] {
		m = math.Max(m, v)
	}
	return m
}

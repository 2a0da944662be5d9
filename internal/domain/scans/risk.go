package scans

// highThresholds: a numeric "malicious" count strictly above the threshold is
// High, anything in (0, threshold] is Medium. Engines not listed use 0, so any
// malicious count from them is High.
var highThresholds = map[string]int64{
	EngineVirusTotal: 2,
}

// HighThreshold returns the malicious-count threshold used for engine.
func HighThreshold(engine string) int64 {
	return highThresholds[engine]
}

// EngineRisk scores a single engine summary.
//
//	High:   malicious == true, malicious > threshold, pulses > 0
//	Medium: 0 < malicious <= threshold, suspicious > 0, score > 0
//	Low:    everything else, including failed engines
func EngineRisk(e EngineResult) Risk {
	if e.Failed() {
		return RiskLow
	}
	s := e.Summary
	risk := RiskLow

	switch m := s["malicious"].(type) {
	case bool:
		if m {
			return RiskHigh
		}
	default:
		if n, ok := numberFromAny(m); ok && n > 0 {
			if n > float64(HighThreshold(e.Engine)) {
				return RiskHigh
			}
			risk = RiskMedium
		}
	}

	if n, ok := numberFromAny(s["pulses"]); ok && n > 0 {
		return RiskHigh
	}
	if n, ok := numberFromAny(s["suspicious"]); ok && n > 0 {
		risk = risk.Max(RiskMedium)
	}
	if n, ok := numberFromAny(s["score"]); ok && n > 0 {
		risk = risk.Max(RiskMedium)
	}
	return risk
}

// OverallRisk is the worst EngineRisk over all engines. A clean engine never
// lowers the result and an empty list (or all failures) is Low.
func OverallRisk(engines []EngineResult) Risk {
	overall := RiskLow
	for _, e := range engines {
		overall = overall.Max(EngineRisk(e))
		if overall == RiskHigh {
			break
		}
	}
	return overall
}

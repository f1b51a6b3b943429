package timefilter

// Common mask presets for export filters. These mirror the time frames users
// pick most often in the schedule editor.

// NightHours covers the late evening through early morning.
func NightHours() Spec {
	return Spec{Hours: "21-23,0-5", Minutes: "0", Mode: ModeNearest}
}

// DawnToDusk covers daytime hours on the hour.
func DawnToDusk() Spec {
	return Spec{Hours: "6-20", Minutes: "0", Mode: ModeNearest}
}

// EveryTenMinutes targets ten-minute marks across the whole day.
func EveryTenMinutes() Spec {
	return Spec{Hours: "*", Minutes: "*/10", Mode: ModeNearest}
}

// QuarterHours targets 0, 15, 30 and 45 minutes past every hour.
func QuarterHours() Spec {
	return Spec{Hours: "*", Minutes: "*/15", Mode: ModeNearest}
}

// EveryTwoHours targets even hours on the hour.
func EveryTwoHours() Spec {
	return Spec{Hours: "*/2", Minutes: "0", Mode: ModeNearest}
}

package domain

// Restriction tightens a profile for a patient type, service type or weather condition.
type Restriction struct {
	MaxAdjustHours  float64 `yaml:"max_adjust_hours" json:"max_adjust_hours,omitempty"`
	MinNoticeHours  float64 `yaml:"min_notice_hours" json:"min_notice_hours,omitempty"`
	RequireApproval bool    `yaml:"require_approval" json:"require_approval,omitempty"`
}

// RestrictedHours are daily ranges a visit may not touch. Emergency hours are reserved for
// emergency requests and only block non-emergency ones.
type RestrictedHours struct {
	Night     ClockRange `yaml:"night,omitempty" json:"night,omitzero"`
	Lunch     ClockRange `yaml:"lunch,omitempty" json:"lunch,omitzero"`
	Emergency ClockRange `yaml:"emergency,omitempty" json:"emergency,omitzero"`
}

// ConditionalRestrictions are keyed by patient type, service type and weather.
type ConditionalRestrictions struct {
	PatientType map[string]Restriction `yaml:"patient_type" json:"patient_type,omitempty"`
	ServiceType map[string]Restriction `yaml:"service_type" json:"service_type,omitempty"`
	Weather     map[string]Restriction `yaml:"weather" json:"weather,omitempty"`
}

// PermissionProfile holds the limits of one tier. Zero caps mean "no limit" except
// MaxCrossDays, where zero means the visit must stay on its original date.
type PermissionProfile struct {
	Tier                    Tier                    `yaml:"tier" json:"tier"`
	MaxAdjustHours          float64                 `yaml:"max_adjust_hours" json:"max_adjust_hours"`
	MaxDelayHours           float64                 `yaml:"max_delay_hours" json:"max_delay_hours,omitempty"`
	MaxAdvanceHours         float64                 `yaml:"max_advance_hours" json:"max_advance_hours,omitempty"`
	MaxAdjustTimesPerDay    int                     `yaml:"max_adjust_times_per_day" json:"max_adjust_times_per_day"`
	MinNoticeHours          float64                 `yaml:"min_notice_hours" json:"min_notice_hours"`
	AllowedTimeRanges       []ClockRange            `yaml:"allowed_time_ranges" json:"allowed_time_ranges,omitempty"`
	RestrictedHours         RestrictedHours         `yaml:"restricted_hours" json:"restricted_hours"`
	MaxCrossDays            int                     `yaml:"max_cross_days" json:"max_cross_days"`
	AllowWeekend            bool                    `yaml:"allow_weekend" json:"allow_weekend"`
	AllowHoliday            bool                    `yaml:"allow_holiday" json:"allow_holiday"`
	ConditionalRestrictions ConditionalRestrictions `yaml:"conditional_restrictions" json:"conditional_restrictions"`
	EmergencyOverride       bool                    `yaml:"emergency_override" json:"emergency_override"`
	RequireApproval         bool                    `yaml:"require_approval" json:"require_approval"`
}

// Restrictions returns the conditional restrictions that apply to a request, in patient,
// service, weather order.
func (p PermissionProfile) Restrictions(req AdjustmentRequest) []Restriction {
	var out []Restriction
	if r, ok := p.ConditionalRestrictions.PatientType[req.PatientType]; ok && req.PatientType != "" {
		out = append(out, r)
	}
	if r, ok := p.ConditionalRestrictions.ServiceType[req.ServiceType]; ok && req.ServiceType != "" {
		out = append(out, r)
	}
	if r, ok := p.ConditionalRestrictions.Weather[req.Weather]; ok && req.Weather != "" {
		out = append(out, r)
	}
	return out
}

// DefaultProfiles returns the built-in profile for every tier.
func DefaultProfiles() map[Tier]PermissionProfile {
	night := MustClockRange("22:00-06:00")
	fullDay := MustClockRange("00:00-24:00")

	return map[Tier]PermissionProfile{
		TierNormal: {
			Tier:                 TierNormal,
			MaxAdjustHours:       24,
			MaxAdjustTimesPerDay: 3,
			MinNoticeHours:       24,
			AllowedTimeRanges:    []ClockRange{MustClockRange("08:00-18:00")},
			RestrictedHours: RestrictedHours{
				Night: night,
				Lunch: MustClockRange("12:00-13:00"),
			},
			MaxCrossDays: 0,
			ConditionalRestrictions: ConditionalRestrictions{
				PatientType: map[string]Restriction{
					"critical": {MaxAdjustHours: 4, MinNoticeHours: 48, RequireApproval: true},
				},
				ServiceType: map[string]Restriction{
					"medication": {MaxAdjustHours: 2, RequireApproval: true},
				},
				Weather: map[string]Restriction{
					"storm": {RequireApproval: true},
					"snow":  {MinNoticeHours: 36},
				},
			},
		},
		TierAdvanced: {
			Tier:                 TierAdvanced,
			MaxAdjustHours:       72,
			MaxAdjustTimesPerDay: 5,
			MinNoticeHours:       12,
			AllowedTimeRanges:    []ClockRange{MustClockRange("07:00-20:00")},
			RestrictedHours:      RestrictedHours{Night: night},
			MaxCrossDays:         3,
			AllowWeekend:         true,
			ConditionalRestrictions: ConditionalRestrictions{
				PatientType: map[string]Restriction{
					"critical": {MaxAdjustHours: 12, MinNoticeHours: 24, RequireApproval: true},
				},
				Weather: map[string]Restriction{
					"storm": {RequireApproval: true},
				},
			},
			RequireApproval: true,
		},
		TierEmergency: {
			Tier:                 TierEmergency,
			MaxAdjustHours:       168,
			MaxAdjustTimesPerDay: 10,
			AllowedTimeRanges:    []ClockRange{fullDay},
			MaxCrossDays:         7,
			AllowWeekend:         true,
			AllowHoliday:         true,
			EmergencyOverride:    true,
			RequireApproval:      true,
		},
		TierAdmin: {
			Tier:              TierAdmin,
			MaxAdjustHours:    720,
			AllowedTimeRanges: []ClockRange{fullDay},
			MaxCrossDays:      30,
			AllowWeekend:      true,
			AllowHoliday:      true,
			EmergencyOverride: true,
		},
	}
}

package domain

// DashboardStats aggregates the admin overview widgets. Each aggregate is
// fetched by its own query and applied independently: a nil field means its
// query failed (the widget name is then listed in FailedWidgets) and the
// rest of the dashboard still renders.
type DashboardStats struct {
	TotalStudents    *int     `json:"totalStudents"`
	ActiveToday      *int     `json:"activeToday"`
	SessionsThisWeek *int     `json:"sessionsThisWeek"`
	AverageScore     *float64 `json:"averageScore"`
	NewThisMonth     *int     `json:"newThisMonth"`
	FailedWidgets    []string `json:"failedWidgets,omitempty"`
}

// Complete reports whether every widget loaded.
func (d DashboardStats) Complete() bool {
	return len(d.FailedWidgets) == 0
}

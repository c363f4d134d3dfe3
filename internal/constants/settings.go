package constants

const (
	// User settings fields
	FieldResetTime = "reset_time"
	FieldUserID    = "user_id"

	// Item fields
	FieldName      = "name"
	FieldPartOfDay = "part_of_day"
	FieldDayOfWeek = "day_of_week"
	FieldOrder     = "order"
	FieldIsChecked = "is_checked"
	FieldCreatedAt = "created_at"

	// DefaultResetTime is offered when the user has not configured one yet
	DefaultResetTime = "06:00"
)

package domain

// UserRole определяет, какую часть дашборда видит пользователь.
type UserRole string

const (
	UserRoleAdmin      UserRole = "ADMIN"
	UserRoleDoctor     UserRole = "DOCTOR"
	UserRoleTechnician UserRole = "TECHNICIAN"
)

// Valid проверяет, что роль относится к поддерживаемым значениям.
func (r UserRole) Valid() bool {
	switch r {
	case UserRoleAdmin, UserRoleDoctor, UserRoleTechnician:
		return true
	default:
		return false
	}
}

// User — участник процесса. Пользователи редактируются только в удалённой таблице,
// локального пути создания/изменения нет.
type User struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Role       UserRole `json:"role"`
	Email      string   `json:"email,omitempty"`
	ClinicName string   `json:"clinicName,omitempty"`
}

package domain

// OrderStatus описывает этап производственного конвейера лаборатории.
type OrderStatus string

const (
	// OrderStatusSubmitted — заказ отправлен клиникой, лаборатория его ещё не приняла.
	OrderStatusSubmitted OrderStatus = "Submitted"
	// OrderStatusReceived — слепки/сканы получены лабораторией.
	OrderStatusReceived OrderStatus = "Received"
	// OrderStatusDesigning — CAD-моделирование реставрации.
	OrderStatusDesigning OrderStatus = "Designing"
	// OrderStatusMilling — фрезеровка.
	OrderStatusMilling OrderStatus = "Milling"
	// OrderStatusGlazing — глазуровка и обжиг.
	OrderStatusGlazing OrderStatus = "Glazing"
	// OrderStatusQualityCheck — контроль качества перед отправкой.
	OrderStatusQualityCheck OrderStatus = "Quality Check"
	// OrderStatusDispatched — работа передана курьеру.
	OrderStatusDispatched OrderStatus = "Dispatched"
	// OrderStatusDelivered — работа доставлена в клинику.
	OrderStatusDelivered OrderStatus = "Delivered"
)

// OrderStatuses возвращает этапы в порядке прохождения конвейера.
func OrderStatuses() []OrderStatus {
	return []OrderStatus{
		OrderStatusSubmitted,
		OrderStatusReceived,
		OrderStatusDesigning,
		OrderStatusMilling,
		OrderStatusGlazing,
		OrderStatusQualityCheck,
		OrderStatusDispatched,
		OrderStatusDelivered,
	}
}

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusSubmitted, OrderStatusReceived, OrderStatusDesigning, OrderStatusMilling,
		OrderStatusGlazing, OrderStatusQualityCheck, OrderStatusDispatched, OrderStatusDelivered:
		return true
	default:
		return false
	}
}

// Priority — срочность заказа.
type Priority string

const (
	PriorityNormal Priority = "Normal"
	PriorityUrgent Priority = "Urgent"
)

// Valid проверяет, что приоритет относится к поддерживаемым значениям.
func (p Priority) Valid() bool {
	return p == PriorityNormal || p == PriorityUrgent
}

// Order — заказ на изготовление реставрации.
// JSON-имена полей совпадают с колонками таблицы удалённого бэкенда.
type Order struct {
	ID             string      `json:"id"`
	PatientName    string      `json:"patientName"`
	DoctorName     string      `json:"doctorName"`
	ClinicName     string      `json:"clinicName,omitempty"`
	ToothNumber    string      `json:"toothNumber"`
	Shade          string      `json:"shade"`
	TypeOfWork     string      `json:"typeOfWork"`
	Status         OrderStatus `json:"status"`
	SubmissionDate string      `json:"submissionDate"`
	DueDate        string      `json:"dueDate"`
	Notes          string      `json:"notes,omitempty"`
	AssignedTech   string      `json:"assignedTech,omitempty"`
	Priority       Priority    `json:"priority"`
}

// NewOrder — данные, которые передаёт клиника при создании заказа.
// ID, статус и дату подачи назначает хранилище.
type NewOrder struct {
	PatientName  string   `json:"patientName" validate:"required,max=200"`
	DoctorName   string   `json:"doctorName" validate:"required,max=200"`
	ClinicName   string   `json:"clinicName,omitempty" validate:"max=200"`
	ToothNumber  string   `json:"toothNumber" validate:"required,max=64"`
	Shade        string   `json:"shade" validate:"required,max=16"`
	TypeOfWork   string   `json:"typeOfWork" validate:"required,max=120"`
	DueDate      string   `json:"dueDate" validate:"required,calendar_date"`
	Notes        string   `json:"notes,omitempty" validate:"max=2000"`
	AssignedTech string   `json:"assignedTech,omitempty" validate:"max=200"`
	Priority     Priority `json:"priority" validate:"required,priority"`
}

// OrderPatch — частичное обновление заказа. Nil-поле означает «не менять».
// Поля ID нет: идентификатор неизменяем.
type OrderPatch struct {
	PatientName  *string      `json:"patientName,omitempty" validate:"omitempty,min=1,max=200"`
	DoctorName   *string      `json:"doctorName,omitempty" validate:"omitempty,min=1,max=200"`
	ClinicName   *string      `json:"clinicName,omitempty" validate:"omitempty,max=200"`
	ToothNumber  *string      `json:"toothNumber,omitempty" validate:"omitempty,max=64"`
	Shade        *string      `json:"shade,omitempty" validate:"omitempty,max=16"`
	TypeOfWork   *string      `json:"typeOfWork,omitempty" validate:"omitempty,max=120"`
	Status       *OrderStatus `json:"status,omitempty" validate:"omitempty,order_status"`
	DueDate      *string      `json:"dueDate,omitempty" validate:"omitempty,calendar_date"`
	Notes        *string      `json:"notes,omitempty" validate:"omitempty,max=2000"`
	AssignedTech *string      `json:"assignedTech,omitempty" validate:"omitempty,max=200"`
	Priority     *Priority    `json:"priority,omitempty" validate:"omitempty,priority"`
}

// Empty сообщает, что патч ничего не меняет.
func (p OrderPatch) Empty() bool {
	return p.PatientName == nil && p.DoctorName == nil && p.ClinicName == nil &&
		p.ToothNumber == nil && p.Shade == nil && p.TypeOfWork == nil &&
		p.Status == nil && p.DueDate == nil && p.Notes == nil &&
		p.AssignedTech == nil && p.Priority == nil
}

// Check проверяет инварианты, которые хранилище обязано соблюдать при слиянии.
func (p OrderPatch) Check() error {
	if p.Status != nil && !p.Status.Valid() {
		return ErrInvalidStatus
	}
	if p.Priority != nil && !p.Priority.Valid() {
		return ErrInvalidPriority
	}
	return nil
}

// Apply возвращает копию заказа с применённым патчем.
func (p OrderPatch) Apply(o Order) Order {
	if p.PatientName != nil {
		o.PatientName = *p.PatientName
	}
	if p.DoctorName != nil {
		o.DoctorName = *p.DoctorName
	}
	if p.ClinicName != nil {
		o.ClinicName = *p.ClinicName
	}
	if p.ToothNumber != nil {
		o.ToothNumber = *p.ToothNumber
	}
	if p.Shade != nil {
		o.Shade = *p.Shade
	}
	if p.TypeOfWork != nil {
		o.TypeOfWork = *p.TypeOfWork
	}
	if p.Status != nil {
		o.Status = *p.Status
	}
	if p.DueDate != nil {
		o.DueDate = NormalizeDate(*p.DueDate)
	}
	if p.Notes != nil {
		o.Notes = *p.Notes
	}
	if p.AssignedTech != nil {
		o.AssignedTech = *p.AssignedTech
	}
	if p.Priority != nil {
		o.Priority = *p.Priority
	}
	return o
}

// Check проверяет инварианты нового заказа, не зависящие от транспорта.
func (n NewOrder) Check() error {
	if n.Priority == "" {
		return nil
	}
	if !n.Priority.Valid() {
		return ErrInvalidPriority
	}
	return nil
}

// Build собирает заказ из входных данных клиники.
func (n NewOrder) Build(id, submissionDate string) Order {
	priority := n.Priority
	if priority == "" {
		priority = PriorityNormal
	}
	return Order{
		ID:             id,
		PatientName:    n.PatientName,
		DoctorName:     n.DoctorName,
		ClinicName:     n.ClinicName,
		ToothNumber:    n.ToothNumber,
		Shade:          n.Shade,
		TypeOfWork:     n.TypeOfWork,
		Status:         OrderStatusSubmitted,
		SubmissionDate: submissionDate,
		DueDate:        NormalizeDate(n.DueDate),
		Notes:          n.Notes,
		AssignedTech:   n.AssignedTech,
		Priority:       priority,
	}
}

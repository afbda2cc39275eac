package store

import "github.com/vladislavdragonenkov/crowngate/internal/domain"

// Dataset — полный набор коллекций хранилища.
type Dataset struct {
	Orders   []domain.Order
	Users    []domain.User
	Products []domain.Product
}

// Clone возвращает независимую копию набора.
func (d Dataset) Clone() Dataset {
	return Dataset{
		Orders:   cloneSlice(d.Orders),
		Users:    cloneSlice(d.Users),
		Products: cloneSlice(d.Products),
	}
}

func cloneSlice[T any](src []T) []T {
	dst := make([]T, len(src))
	copy(dst, src)
	return dst
}

// DefaultSeed возвращает демонстрационный набор лаборатории.
func DefaultSeed() Dataset {
	return Dataset{
		Orders: []domain.Order{
			{
				ID:             "ORD-001",
				PatientName:    "John Doe",
				DoctorName:     "Dr. Smith",
				ClinicName:     "Smile Care",
				ToothNumber:    "14, 15",
				Shade:          "A2",
				TypeOfWork:     "Zirconia Crown",
				Status:         domain.OrderStatusDesigning,
				SubmissionDate: "2023-10-25",
				DueDate:        "2023-11-01",
				AssignedTech:   "Tech Mike",
				Priority:       domain.PriorityNormal,
				Notes:          "Please check margins carefully.",
			},
			{
				ID:             "ORD-002",
				PatientName:    "Sarah Connor",
				DoctorName:     "Dr. Patel",
				ClinicName:     "Dental Arts",
				ToothNumber:    "21",
				Shade:          "B1",
				TypeOfWork:     "E-Max Veneer",
				Status:         domain.OrderStatusSubmitted,
				SubmissionDate: "2023-10-26",
				DueDate:        "2023-11-02",
				AssignedTech:   "Tech Sarah",
				Priority:       domain.PriorityUrgent,
				Notes:          "Patient travelling next week.",
			},
			{
				ID:             "ORD-003",
				PatientName:    "Michael Ross",
				DoctorName:     "Dr. Smith",
				ClinicName:     "Smile Care",
				ToothNumber:    "46",
				Shade:          "A3",
				TypeOfWork:     "PFM",
				Status:         domain.OrderStatusGlazing,
				SubmissionDate: "2023-10-20",
				DueDate:        "2023-10-28",
				AssignedTech:   "Tech Sarah",
				Priority:       domain.PriorityNormal,
			},
			{
				ID:             "ORD-004",
				PatientName:    "Emily Blunt",
				DoctorName:     "Dr. Lee",
				ClinicName:     "City Dental",
				ToothNumber:    "11",
				Shade:          "A1",
				TypeOfWork:     "Zirconia Layered",
				Status:         domain.OrderStatusDispatched,
				SubmissionDate: "2023-10-15",
				DueDate:        "2023-10-22",
				AssignedTech:   "Tech Mike",
				Priority:       domain.PriorityNormal,
			},
			{
				ID:             "ORD-005",
				PatientName:    "Bruce Wayne",
				DoctorName:     "Dr. Smith",
				ClinicName:     "Smile Care",
				ToothNumber:    "36",
				Shade:          "A3.5",
				TypeOfWork:     "Implant Abutment",
				Status:         domain.OrderStatusReceived,
				SubmissionDate: "2023-10-27",
				DueDate:        "2023-11-05",
				AssignedTech:   "Tech Mike",
				Priority:       domain.PriorityUrgent,
			},
		},
		Users: []domain.User{
			{ID: "USR-001", Name: "Lab Admin", Role: domain.UserRoleAdmin, Email: "admin@crowngate.lab"},
			{ID: "USR-002", Name: "Dr. Smith", Role: domain.UserRoleDoctor, Email: "smith@smilecare.example", ClinicName: "Smile Care"},
			{ID: "USR-003", Name: "Dr. Patel", Role: domain.UserRoleDoctor, Email: "patel@dentalarts.example", ClinicName: "Dental Arts"},
			{ID: "USR-004", Name: "Dr. Lee", Role: domain.UserRoleDoctor, Email: "lee@citydental.example", ClinicName: "City Dental"},
			{ID: "USR-005", Name: "Tech Mike", Role: domain.UserRoleTechnician, Email: "mike@crowngate.lab"},
			{ID: "USR-006", Name: "Tech Sarah", Role: domain.UserRoleTechnician, Email: "sarah@crowngate.lab"},
		},
		Products: []domain.Product{
			{ID: "PROD-001", Name: "Zirconia Crown"},
			{ID: "PROD-002", Name: "E-Max Veneer"},
			{ID: "PROD-003", Name: "PFM"},
			{ID: "PROD-004", Name: "Zirconia Layered"},
			{ID: "PROD-005", Name: "Implant Abutment"},
		},
	}
}

package store

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/vladislavdragonenkov/crowngate/internal/domain"
)

// cell извлекает значение ячейки как строку. Таблица может вернуть число
// там, где ожидается текст (номер зуба, оттенок A1), поэтому числа приводятся к строке.
func cell(rec domain.Record, key string) string {
	switch v := rec[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}

// ordersFromRecords собирает заказы из строк листа Orders, нормализуя даты.
// Статус и приоритет сохраняются как есть: бэкенд может содержать значения вне перечисления.
func ordersFromRecords(records []domain.Record) []domain.Order {
	orders := make([]domain.Order, 0, len(records))
	for _, rec := range records {
		orders = append(orders, domain.Order{
			ID:             cell(rec, "id"),
			PatientName:    cell(rec, "patientName"),
			DoctorName:     cell(rec, "doctorName"),
			ClinicName:     cell(rec, "clinicName"),
			ToothNumber:    cell(rec, "toothNumber"),
			Shade:          cell(rec, "shade"),
			TypeOfWork:     cell(rec, "typeOfWork"),
			Status:         domain.OrderStatus(cell(rec, "status")),
			SubmissionDate: domain.NormalizeDate(cell(rec, "submissionDate")),
			DueDate:        domain.NormalizeDate(cell(rec, "dueDate")),
			Notes:          cell(rec, "notes"),
			AssignedTech:   cell(rec, "assignedTech"),
			Priority:       domain.Priority(cell(rec, "priority")),
		})
	}
	return orders
}

func usersFromRecords(records []domain.Record) []domain.User {
	users := make([]domain.User, 0, len(records))
	for _, rec := range records {
		users = append(users, domain.User{
			ID:         cell(rec, "id"),
			Name:       cell(rec, "name"),
			Role:       domain.UserRole(cell(rec, "role")),
			Email:      cell(rec, "email"),
			ClinicName: cell(rec, "clinicName"),
		})
	}
	return users
}

func productsFromRecords(records []domain.Record) []domain.Product {
	products := make([]domain.Product, 0, len(records))
	for _, rec := range records {
		products = append(products, domain.Product{
			ID:   cell(rec, "id"),
			Name: cell(rec, "name"),
		})
	}
	return products
}

// normalizeOrders приводит даты к календарному виду; повторный вызов ничего не меняет.
func normalizeOrders(orders []domain.Order) {
	for i := range orders {
		orders[i].SubmissionDate = domain.NormalizeDate(orders[i].SubmissionDate)
		orders[i].DueDate = domain.NormalizeDate(orders[i].DueDate)
	}
}

package domain

// EstimatedOrderPrice — средняя цена работы для оценки выручки на дашборде.
const EstimatedOrderPrice = 150

// DashboardStats — агрегаты для панели администратора.
type DashboardStats struct {
	TotalOrders    int                 `json:"totalOrders"`
	TotalActive    int                 `json:"totalActive"`
	Urgent         int                 `json:"urgent"`
	Revenue        int                 `json:"revenue"`
	CompletionRate float64             `json:"completionRate"`
	StatusVolume   map[OrderStatus]int `json:"statusVolume"`
}

// ComputeDashboardStats считает KPI по текущей коллекции заказов.
// Активными считаются все не доставленные заказы.
func ComputeDashboardStats(orders []Order) DashboardStats {
	stats := DashboardStats{
		TotalOrders:  len(orders),
		Revenue:      len(orders) * EstimatedOrderPrice,
		StatusVolume: make(map[OrderStatus]int, len(OrderStatuses())),
	}
	for _, status := range OrderStatuses() {
		stats.StatusVolume[status] = 0
	}

	delivered := 0
	for _, o := range orders {
		stats.StatusVolume[o.Status]++
		if o.Status == OrderStatusDelivered {
			delivered++
		} else {
			stats.TotalActive++
		}
		if o.Priority == PriorityUrgent {
			stats.Urgent++
		}
	}
	if len(orders) > 0 {
		stats.CompletionRate = float64(delivered) * 100 / float64(len(orders))
	}
	return stats
}

// OrderFilter отбирает заказы для очередей врача/техника. Пустое поле не фильтрует.
type OrderFilter struct {
	Status       OrderStatus
	DoctorName   string
	AssignedTech string
	Priority     Priority
}

// Match проверяет заказ на соответствие фильтру.
func (f OrderFilter) Match(o Order) bool {
	if f.Status != "" && o.Status != f.Status {
		return false
	}
	if f.DoctorName != "" && o.DoctorName != f.DoctorName {
		return false
	}
	if f.AssignedTech != "" && o.AssignedTech != f.AssignedTech {
		return false
	}
	if f.Priority != "" && o.Priority != f.Priority {
		return false
	}
	return true
}

// FilterOrders возвращает заказы, подходящие под фильтр, сохраняя порядок.
func FilterOrders(orders []Order, f OrderFilter) []Order {
	result := make([]Order, 0, len(orders))
	for _, o := range orders {
		if f.Match(o) {
			result = append(result, o)
		}
	}
	return result
}

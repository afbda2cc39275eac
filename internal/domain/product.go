package domain

// Product — позиция каталога типов реставраций.
type Product struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

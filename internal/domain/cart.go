package domain

// Product содержит метаданные товара из каталога, ещё без количества.
type Product struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	ImageURL string `json:"image_url"`
	// Price не участвует в логике корзины и хранится как есть.
	Price float64 `json:"price"`
}

// LineItem представляет одну позицию корзины.
type LineItem struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	ImageURL string  `json:"image_url"`
	Price    float64 `json:"price"`
	// Quantity никогда не бывает отрицательным; позиция с нулём остаётся в корзине.
	Quantity int `json:"quantity"`
}

// CartState хранит упорядоченный список позиций, уникальных по ID.
// Порядок вставки совпадает с порядком отображения.
type CartState []LineItem

// Index возвращает позицию элемента с указанным id или -1.
func (c CartState) Index(id string) int {
	for i := range c {
		if c[i].ID == id {
			return i
		}
	}
	return -1
}

// Clone возвращает независимую копию состояния.
func (c CartState) Clone() CartState {
	out := make(CartState, len(c))
	copy(out, c)
	return out
}

// Append добавляет новый товар в конец с количеством 1.
// Наличие id не проверяется: вызывающий код обязан сделать это через Index.
func (c CartState) Append(p Product) CartState {
	out := make(CartState, len(c), len(c)+1)
	copy(out, c)
	return append(out, LineItem{
		ID:       p.ID,
		Title:    p.Title,
		ImageURL: p.ImageURL,
		Price:    p.Price,
		Quantity: 1,
	})
}

// Increment увеличивает количество у всех позиций с данным id.
// Для неизвестного id возвращается неизменённая копия.
func (c CartState) Increment(id string) CartState {
	out := c.Clone()
	for i := range out {
		if out[i].ID == id {
			out[i].Quantity++
		}
	}
	return out
}

// Decrement уменьшает количество, не опускаясь ниже нуля.
func (c CartState) Decrement(id string) CartState {
	out := c.Clone()
	for i := range out {
		if out[i].ID == id && out[i].Quantity > 0 {
			out[i].Quantity--
		}
	}
	return out
}

// TotalQuantity суммирует количество по всем позициям.
func (c CartState) TotalQuantity() int {
	total := 0
	for _, item := range c {
		total += item.Quantity
	}
	return total
}

// ValidateInvariants проверяет инварианты корзины и возвращает список замечаний.
func (c CartState) ValidateInvariants() []error {
	var errs []error

	seen := make(map[string]struct{}, len(c))
	for _, item := range c {
		if item.ID == "" {
			errs = append(errs, ErrItemIDRequired)
			continue
		}
		if item.Quantity < 0 {
			errs = append(errs, ErrItemQtyNegative)
		}
		if _, dup := seen[item.ID]; dup {
			errs = append(errs, ErrItemDuplicate)
		}
		seen[item.ID] = struct{}{}
	}

	return errs
}

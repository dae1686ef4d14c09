package domain

// LocationKind различает, где физически лежит остаток.
type LocationKind string

const (
	// LocationRoot — поле stock самого товара (в том числе у «брата» по VariantGroupID).
	LocationRoot LocationKind = "root"
	// LocationVariant — stock вложенного варианта.
	LocationVariant LocationKind = "variant"
)

// StockLocation указывает на конкретный остаток, который нужно изменить.
// Size пустой у корневого остатка, если покупатель размер не выбирал.
type StockLocation struct {
	Kind      LocationKind
	ProductID string
	Size      string
	ItemName  string
	Available int
}

// StockRequest — потребность одной позиции заказа.
type StockRequest struct {
	ProductID    string
	ItemName     string
	SelectedSize string
	Quantity     int
}

// StockRequests собирает потребности по позициям заказа.
func StockRequests(items []LineItem) []StockRequest {
	reqs := make([]StockRequest, 0, len(items))
	for _, item := range items {
		reqs = append(reqs, StockRequest{
			ProductID:    item.ProductID,
			ItemName:     item.ItemName,
			SelectedSize: item.SelectedSize,
			Quantity:     item.Quantity,
		})
	}
	return reqs
}

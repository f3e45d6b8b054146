package models

// ZoneType тип ценовой зоны
type ZoneType string

const (
	ZoneBullish ZoneType = "BULLISH"
	ZoneBearish ZoneType = "BEARISH"
)

// OrderBlock зона спроса/предложения, построенная по контртрендовой свече
type OrderBlock struct {
	Type        ZoneType `json:"type"`
	Top         float64  `json:"top"`
	Bottom      float64  `json:"bottom"`
	FormedIndex int      `json:"formedIndex"`
	VolRatio    float64  `json:"volRatio"`
	Tests       int      `json:"tests"`
	Invalidated bool     `json:"invalidated"`
	Age         int      `json:"age"` // в свечах с момента формирования
}

// Contains проверяет, находится ли цена внутри зоны
func (ob OrderBlock) Contains(price float64) bool {
	return price >= ob.Bottom && price <= ob.Top
}

// Width ширина зоны
func (ob OrderBlock) Width() float64 { return ob.Top - ob.Bottom }

// FVG разрыв справедливой стоимости; границы открытого интервала
type FVG struct {
	Type   ZoneType `json:"type"`
	Index  int      `json:"index"` // индекс средней свечи
	Top    float64  `json:"top"`
	Bottom float64  `json:"bottom"`
}

// SizePct ширина разрыва в процентах от цены
func (f FVG) SizePct(price float64) float64 {
	if price <= 0 {
		return 0
	}
	return (f.Top - f.Bottom) / price * 100
}

package ftso

import "context"

// Interval band multipliers are configuration constants approximating the
// two-sided normal critical values for each confidence level. They are not
// derived from empirical variance.
var intervalBands = []struct {
	Level      float64
	Multiplier float64
}{
	{Level: 0.50, Multiplier: 0.67},
	{Level: 0.80, Multiplier: 1.28},
	{Level: 0.95, Multiplier: 1.96},
	{Level: 0.99, Multiplier: 2.58},
}

// minVarianceFactor keeps band widths strictly increasing even when the
// consensus confidence is exactly 1.
const minVarianceFactor = 1e-4

// minWidthPrice keeps the half-widths nonzero for a valid zero-price quote,
// so the bands still nest strictly.
const minWidthPrice = 1e-9

// GetConfidenceInterval derives the uncertainty envelope around the current
// price of symbol from a single quote. The variance factor is one minus the
// overall consensus confidence.
func (c *Connection) GetConfidenceInterval(ctx context.Context, symbol string) (ConfidenceInterval, error) {
	quote, err := c.GetLatestPrice(ctx, symbol)
	if err != nil {
		return ConfidenceInterval{}, err
	}
	return intervalFromQuote(quote), nil
}

func intervalFromQuote(quote PriceQuote) ConfidenceInterval {
	variance := 1 - quote.Confidence.Overall
	if variance < minVarianceFactor {
		variance = minVarianceFactor
	}
	widthPrice := quote.Price
	if widthPrice < minWidthPrice {
		widthPrice = minWidthPrice
	}

	bands := make([]Band, 0, len(intervalBands))
	for _, band := range intervalBands {
		half := band.Multiplier * variance * widthPrice
		bands = append(bands, Band{
			Level: band.Level,
			Lower: quote.Price - half,
			Upper: quote.Price + half,
		})
	}
	return ConfidenceInterval{
		Symbol:    quote.Symbol,
		Timestamp: quote.Timestamp,
		Price:     quote.Price,
		Bands:     bands,
	}
}

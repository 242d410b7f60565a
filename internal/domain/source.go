package domain

// Source identifies an external data provider.
type Source string

const (
	SourceCoinGecko   Source = "coingecko"
	SourceCoinPaprika Source = "coinpaprika"
	SourceCSV         Source = "csv"
	SourceExchangeWS  Source = "exchange_ws"
)

// String returns the string representation of Source.
func (s Source) String() string {
	return string(s)
}

// IsValid checks if the source is a known provider.
func (s Source) IsValid() bool {
	switch s {
	case SourceCoinGecko, SourceCoinPaprika, SourceCSV, SourceExchangeWS:
		return true
	}
	return false
}

// AllSources lists every known provider.
func AllSources() []Source {
	return []Source{SourceCoinGecko, SourceCoinPaprika, SourceCSV, SourceExchangeWS}
}

package resolver

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// stockAliases maps a canonical NSE ticker root to the colloquial names
// signals use for it. The reverse lookup is built at construction.
var stockAliases = map[string][]string{
	"RELIANCE":   {"RIL", "RELIANCE INDUSTRIES", "RELIANCE IND"},
	"TATASTEEL":  {"TATA STEEL", "TATA STEEL LTD"},
	"TATAMOTORS": {"TATA MOTORS", "TATAMOT"},
	"HDFCBANK":   {"HDFC BANK", "HDFC"},
	"ICICIBANK":  {"ICICI BANK", "ICICI"},
	"SBIN":       {"SBI", "STATE BANK", "STATE BANK OF INDIA"},
	"INFY":       {"INFOSYS", "INFOSYS LTD"},
	"TCS":        {"TATA CONSULTANCY", "TATA CONSULTANCY SERVICES"},
	"WIPRO":      {"WIPRO LTD"},
	"BHARTIARTL": {"AIRTEL", "BHARTI AIRTEL", "BHARTI"},
	"AXISBANK":   {"AXIS BANK", "AXIS"},
	"KOTAKBANK":  {"KOTAK", "KOTAK MAHINDRA", "KOTAK BANK"},
	"HINDUNILVR": {"HUL", "HINDUSTAN UNILEVER"},
	"MARUTI":     {"MARUTI SUZUKI", "MSIL"},
	"BAJFINANCE": {"BAJAJ FINANCE", "BAJ FINANCE"},
	"BAJAJFINSV": {"BAJAJ FINSERV"},
	"ASIANPAINT": {"ASIAN PAINTS"},
	"ULTRACEMCO": {"ULTRATECH", "ULTRATECH CEMENT"},
	"SUNPHARMA":  {"SUN PHARMA"},
	"DRREDDY":    {"DR REDDY", "DR REDDYS"},
	"CIPLA":      {"CIPLA LTD"},
	"ONGC":       {"OIL AND NATURAL GAS", "OIL INDIA"},
	"NTPC":       {"NTPC LTD"},
	"POWERGRID":  {"POWER GRID"},
	"COALINDIA":  {"COAL INDIA"},
	"JSWSTEEL":   {"JSW STEEL"},
	"HINDALCO":   {"HINDALCO INDUSTRIES"},
	"ADANIENT":   {"ADANI ENT", "ADANI ENTERPRISES"},
	"ADANIPORTS": {"ADANI PORTS"},
	"LT":         {"L&T", "LARSEN", "LARSEN & TOUBRO", "LARSEN AND TOUBRO"},
	"TECHM":      {"TECH MAHINDRA"},
	"HCLTECH":    {"HCL TECH", "HCL TECHNOLOGIES"},
	"M&M":        {"MAHINDRA", "M AND M", "MAHINDRA AND MAHINDRA"},
	"EICHERMOT":  {"EICHER", "EICHER MOTORS"},
	"HEROMOTOCO": {"HERO", "HERO MOTOCORP"},
	"BAJAJ-AUTO": {"BAJAJ AUTO", "BAJAJAUTO"},
	"DIVISLAB":   {"DIVIS LAB", "DIVIS LABORATORIES"},
	"GRASIM":     {"GRASIM INDUSTRIES"},
	"BRITANNIA":  {"BRITANNIA INDUSTRIES"},
	"NESTLEIND":  {"NESTLE", "NESTLE INDIA"},
	"TITAN":      {"TITAN COMPANY"},
	"ITC":        {"ITC LTD"},
}

// indexRouting maps index underlyings to their derivatives segment.
// NSE indices trade on NFO, BSE indices on BFO. Non-index underlyings
// always route to NFO.
var indexRouting = map[string]string{
	"NIFTY":      "NFO",
	"BANKNIFTY":  "NFO",
	"FINNIFTY":   "NFO",
	"MIDCPNIFTY": "NFO",
	"SENSEX":     "BFO",
	"BANKEX":     "BFO",
}

// Overrides are optional operator-supplied additions to the built-in
// alias and routing tables, loaded from YAML.
type Overrides struct {
	Aliases map[string][]string `yaml:"aliases"`
	Routing map[string]string   `yaml:"routing"`
}

// LoadOverrides parses an overrides file. A missing path returns empty
// overrides rather than an error so the file stays optional.
func LoadOverrides(path string) (Overrides, error) {
	var ov Overrides
	if path == "" {
		return ov, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ov, nil
		}
		return ov, fmt.Errorf("resolver: read overrides: %w", err)
	}
	if err := yaml.Unmarshal(raw, &ov); err != nil {
		return ov, fmt.Errorf("resolver: parse overrides: %w", err)
	}
	return ov, nil
}

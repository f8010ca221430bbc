package guard

// countryCurrency maps ISO 3166-1 alpha-2 country codes to their canonical
// ISO 4217 currency. Covers the platform's shipping origins; countries not
// listed here are not checked for mismatch.
var countryCurrency = map[string]string{
	"AE": "AED",
	"AT": "EUR",
	"AU": "AUD",
	"BD": "BDT",
	"BE": "EUR",
	"BR": "BRL",
	"CA": "CAD",
	"CH": "CHF",
	"CN": "CNY",
	"CZ": "CZK",
	"DE": "EUR",
	"DK": "DKK",
	"EG": "EGP",
	"ES": "EUR",
	"FI": "EUR",
	"FR": "EUR",
	"GB": "GBP",
	"GR": "EUR",
	"HK": "HKD",
	"HU": "HUF",
	"ID": "IDR",
	"IE": "EUR",
	"IL": "ILS",
	"IN": "INR",
	"IT": "EUR",
	"JP": "JPY",
	"KR": "KRW",
	"LK": "LKR",
	"MX": "MXN",
	"MY": "MYR",
	"NG": "NGN",
	"NL": "EUR",
	"NO": "NOK",
	"NP": "NPR",
	"NZ": "NZD",
	"PH": "PHP",
	"PK": "PKR",
	"PL": "PLN",
	"PT": "EUR",
	"SA": "SAR",
	"SE": "SEK",
	"SG": "SGD",
	"TH": "THB",
	"TR": "TRY",
	"US": "USD",
	"VN": "VND",
	"ZA": "ZAR",
}

var knownCurrencies = buildKnownCurrencies()

func buildKnownCurrencies() map[string]struct{} {
	set := make(map[string]struct{}, len(countryCurrency))
	for _, c := range countryCurrency {
		set[c] = struct{}{}
	}
	return set
}

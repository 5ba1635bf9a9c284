// Package taxes computes the tax part of a charge from an external
// country-rate service, honoring EU reverse charge for business
// subscribers with a VAT number.
package taxes

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/levigross/grequests"
	"github.com/pkg/errors"

	"github.com/azzapp/billing-api/internal/api/apierrors"
	"github.com/azzapp/billing-api/internal/shared/config"
	"github.com/azzapp/billing-api/internal/shared/logutil"
)

// RateFetcher returns the tax rate for a country, e.g. 0.2 for 20% VAT.
type RateFetcher interface {
	Rate(ctx context.Context, countryCode string) (float64, error)
}

type HTTPRates struct {
	log     logutil.Log
	apiRoot string
}

var _ RateFetcher = HTTPRates{}

func NewHTTPRates(log logutil.Log, cfg config.Config) (*HTTPRates, error) {
	apiRoot := cfg.GetString("TAX_SERVICE_ROOT")
	if apiRoot == "" {
		return nil, errors.New("no tax service root")
	}

	return &HTTPRates{
		log:     log,
		apiRoot: apiRoot,
	}, nil
}

func (c HTTPRates) Rate(ctx context.Context, countryCode string) (float64, error) {
	apiURL := fmt.Sprintf("%s/rates/%s", c.apiRoot, strings.ToUpper(countryCode))

	resp, err := grequests.Get(apiURL, &grequests.RequestOptions{Context: ctx})
	if err != nil {
		return 0, errors.Wrapf(err, "failed to fetch tax rate for %s", countryCode)
	}
	if !resp.Ok {
		return 0, fmt.Errorf("tax service response code %d for %s", resp.StatusCode, countryCode)
	}

	var respData struct {
		Rate float64 `json:"rate"`
	}
	if err = resp.JSON(&respData); err != nil {
		return 0, errors.Wrap(err, "failed to decode tax service response")
	}

	return respData.Rate, nil
}

// vatNumberRe matches the usual EU VAT number shape: a two-letter country
// prefix followed by 2 to 12 alphanumerics.
var vatNumberRe = regexp.MustCompile(`^[A-Z]{2}[0-9A-Z]{2,12}$`)

type Calculator struct {
	log   logutil.Log
	rates RateFetcher
}

func NewCalculator(log logutil.Log, rates RateFetcher) *Calculator {
	return &Calculator{
		log:   log,
		rates: rates,
	}
}

// Calculate returns the tax on amount in minor units, floored. A
// syntactically valid VAT number triggers reverse charge: the subscriber
// self-accounts for VAT and we charge none. Rate-service failure is fatal
// to the caller, never retried here.
func (c Calculator) Calculate(ctx context.Context, amount int, countryCode, vatNumber string) (int, error) {
	if vatNumber != "" && vatNumberRe.MatchString(strings.ToUpper(strings.ReplaceAll(vatNumber, " ", ""))) {
		return 0, nil
	}
	if countryCode == "" || amount == 0 {
		return 0, nil
	}

	rate, err := c.rates.Rate(ctx, countryCode)
	if err != nil {
		return 0, errors.Wrapf(apierrors.ErrExternalGateway, "tax rate lookup failed: %s", err)
	}

	return int(float64(amount) * rate), nil
}

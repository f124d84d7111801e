package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"ramp-quote-go/internal/api"
	"ramp-quote-go/internal/approval"
	"ramp-quote-go/internal/models"
	"ramp-quote-go/internal/providers"
	"ramp-quote-go/internal/wallet"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.service.HealthCheck(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, models.ErrorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listProviders(w http.ResponseWriter, r *http.Request) {
	infos := s.service.Providers()
	views := make([]models.ProviderView, len(infos))
	for i, info := range infos {
		views[i] = models.ProviderView{Id: info.ID, DisplayName: info.DisplayName, Directions: info.Directions}
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) checkSupport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req, err := s.supportRequest(q.Get("direction"), q.Get("region"), q.Get("fiat"), q.Get("asset"), q.Get("platform"))
	if err != nil {
		writeError(w, err)
		return
	}

	answers := s.service.CheckSupport(r.Context(), req)
	views := make([]models.SupportView, len(answers))
	for i, a := range answers {
		views[i] = models.SupportView{
			Provider:    a.Provider,
			Supported:   a.Result.Supported,
			AmountTypes: a.Result.AmountTypes,
		}
		if a.Err != nil {
			views[i].Error = a.Err.Error()
		}
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) fetchQuotes(w http.ResponseWriter, r *http.Request) {
	var body models.QuoteRequestBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	req, err := s.quoteRequest(body)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := s.service.FetchQuotes(r.Context(), req)
	if err != nil {
		writeError(w, invalid(err))
		return
	}

	resp := models.QuotesResponse{Quotes: make([]models.QuoteView, 0, len(result.Quotes))}
	for _, q := range result.Quotes {
		resp.Quotes = append(resp.Quotes, quoteView(q))
	}
	if len(result.Failures) > 0 {
		resp.Failures = make(map[string]string, len(result.Failures))
		for _, f := range result.Failures {
			resp.Failures[f.Provider] = f.Err.Error()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getQuote(w http.ResponseWriter, r *http.Request) {
	q, err := s.service.Quote(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quoteView(q))
}

// approveQuote starts a buy approval and returns the checkout URL for the
// client to open. Sell approvals need a wallet that can send, which HTTP
// callers cannot provide.
func (s *Server) approveQuote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body models.ApproveRequestBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	q, err := s.service.Quote(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if q.Direction != models.DirectionBuy {
		writeError(w, invalid(errors.New("only buy quotes can be approved over HTTP")))
		return
	}

	handoff := &approval.Handoff{}
	flow, err := s.service.ApproveQuote(r.Context(), id, wallet.AddressOnly{Address: body.ReceiveAddress}, approval.WithSurface(handoff))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, models.ApproveResponse{
		QuoteId:     id,
		FlowId:      flow.ID(),
		State:       string(flow.State()),
		CheckoutURL: handoff.URL(),
	})
}

func (s *Server) closeQuote(w http.ResponseWriter, r *http.Request) {
	if err := s.service.CloseQuote(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getFlow(w http.ResponseWriter, r *http.Request) {
	status, err := s.service.Flow(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, flowView(status))
}

func (s *Server) deeplink(w http.ResponseWriter, r *http.Request) {
	link, err := approval.ParseLink(chi.URLParam(r, "direction"), chi.URLParam(r, "provider"), r.URL)
	if err != nil {
		writeError(w, invalid(err))
		return
	}
	if err := s.service.HandleDeeplink(r.Context(), link); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "received"})
}

func decodeBody(r *http.Request, v any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return invalid(fmt.Errorf("invalid payload: %w", err))
	}
	if err := validate.Struct(v); err != nil {
		return invalid(err)
	}
	return nil
}

func (s *Server) supportRequest(direction, region, fiat, asset, platform string) (providers.SupportRequest, error) {
	dir, err := models.ParseDirection(direction)
	if err != nil {
		return providers.SupportRequest{}, invalid(err)
	}
	regionCode, err := models.ParseRegionCode(region)
	if err != nil {
		return providers.SupportRequest{}, invalid(err)
	}
	cryptoAsset, err := models.ParseCryptoAsset(asset)
	if err != nil {
		return providers.SupportRequest{}, invalid(err)
	}
	if models.NormalizeFiat(fiat) == "" {
		return providers.SupportRequest{}, invalid(errors.New("fiat currency is required"))
	}
	return providers.SupportRequest{
		Direction: dir,
		Region:    regionCode,
		Fiat:      models.NormalizeFiat(fiat),
		Asset:     cryptoAsset,
		Platform:  s.resolvePlatform(platform),
	}, nil
}

func (s *Server) quoteRequest(body models.QuoteRequestBody) (providers.QuoteRequest, error) {
	base, err := s.supportRequest(body.Direction, body.Region, body.FiatCurrencyCode, body.Asset, body.Platform)
	if err != nil {
		return providers.QuoteRequest{}, err
	}
	amountType, err := models.ParseAmountType(body.AmountType)
	if err != nil {
		return providers.QuoteRequest{}, invalid(err)
	}

	amount := models.MaxAmount()
	if !body.Max {
		exact, err := decimal.NewFromString(body.Amount)
		if err != nil {
			return providers.QuoteRequest{}, invalid(fmt.Errorf("invalid amount %q", body.Amount))
		}
		amount = models.ExactAmount(exact)
	} else if body.MaxCap != "" {
		limit, err := decimal.NewFromString(body.MaxCap)
		if err != nil {
			return providers.QuoteRequest{}, invalid(fmt.Errorf("invalid max_cap %q", body.MaxCap))
		}
		amount.Cap = decimal.NewNullDecimal(limit)
	}

	req := providers.QuoteRequest{
		Direction:           base.Direction,
		Region:              base.Region,
		Asset:               base.Asset,
		Fiat:                base.Fiat,
		DisplayCurrencyCode: body.DisplayCurrencyCode,
		AmountType:          amountType,
		Amount:              amount,
		PromoCode:           body.PromoCode,
		Platform:            base.Platform,
	}
	if body.ReceiveAddress != "" {
		req.Wallet = wallet.AddressOnly{Address: body.ReceiveAddress}
	}
	if err := req.Validate(); err != nil {
		return providers.QuoteRequest{}, invalid(err)
	}
	return req, nil
}

func (s *Server) resolvePlatform(platform string) models.Platform {
	if platform == "" {
		return s.platform
	}
	return models.Platform(platform)
}

func quoteView(q *providers.Quote) models.QuoteView {
	return models.QuoteView{
		Id:                  q.ID,
		Provider:            q.Provider,
		Direction:           q.Direction,
		PaymentType:         q.PaymentType,
		FiatCurrencyCode:    q.FiatCurrencyCode,
		FiatAmount:          q.FiatAmount,
		DisplayCurrencyCode: q.DisplayCurrencyCode,
		CryptoAmount:        q.CryptoAmount,
		IsEstimate:          q.IsEstimate,
		ExpiresAt:           q.ExpiresAt,
		SettlementMin:       q.SettlementRange.Min.String(),
		SettlementMax:       q.SettlementRange.Max.String(),
	}
}

func flowView(status *api.FlowStatus) models.FlowView {
	return models.FlowView{
		Id:       status.ID,
		Provider: status.Provider,
		State:    string(status.State),
		Detail:   status.Detail,
		TxId:     status.TxID,
		Live:     status.Live,
		Events:   status.Events,
	}
}

package handlers

import (
	"context"
	"net/http"

	"cinema-booking/models"

	"github.com/labstack/echo/v5"
)

type WalletController interface {
	Available() bool
	Session() models.WalletSession
	NetworkState() models.NetworkState
	Connect(ctx context.Context) (string, error)
	Disconnect()
	CheckNetwork(ctx context.Context) (models.NetworkStatus, error)
	SwitchNetwork(ctx context.Context) error
}

type WalletHandler struct {
	wallet WalletController
}

func NewWalletHandler(w WalletController) *WalletHandler {
	return &WalletHandler{wallet: w}
}

type WalletResponse struct {
	Available    bool                 `json:"available"`
	Session      models.WalletSession `json:"session"`
	ShortAddress string               `json:"short_address,omitempty"`
	Network      models.NetworkState  `json:"network"`
}

func (h *WalletHandler) state() WalletResponse {
	s := h.wallet.Session()
	return WalletResponse{
		Available:    h.wallet.Available(),
		Session:      s,
		ShortAddress: models.ShortAddress(s.Address),
		Network:      h.wallet.NetworkState(),
	}
}

func (h *WalletHandler) Get(c echo.Context) error {
	return c.JSON(http.StatusOK, h.state())
}

func (h *WalletHandler) Connect(c echo.Context) error {
	if _, err := h.wallet.Connect(c.Request().Context()); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, h.state())
}

func (h *WalletHandler) Disconnect(c echo.Context) error {
	h.wallet.Disconnect()
	return c.JSON(http.StatusOK, h.state())
}

func (h *WalletHandler) Network(c echo.Context) error {
	st, err := h.wallet.CheckNetwork(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, st)
}

func (h *WalletHandler) SwitchNetwork(c echo.Context) error {
	if err := h.wallet.SwitchNetwork(c.Request().Context()); err != nil {
		return respondError(c, err)
	}
	st, err := h.wallet.CheckNetwork(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, st)
}

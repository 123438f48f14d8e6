package example

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/anovik/eventflow-example/account"
)

type rejectionsResp struct {
	Rejections []account.Rejection `json:"rejections"`
}

// NewOpenAccountHandlerFunc creates the account opening endpoint
func NewOpenAccountHandlerFunc(b *Backend) echo.HandlerFunc {
	type req struct {
		Holder string `json:"holder"`
	}

	return func(c echo.Context) error {
		var r req

		if err := c.Bind(&r); err != nil {
			return c.NoContent(http.StatusBadRequest)
		}

		id := fmt.Sprintf("account-%s", uuid.NewString())

		cmd := Command{
			ID:      commandID(c),
			Address: id,
			Payload: account.OpenAccount{Holder: r.Holder},
		}

		rejections, err := b.Process(c.Request().Context(), cmd)
		if err != nil {
			return err
		}

		if len(rejections) > 0 {
			return c.JSON(http.StatusUnprocessableEntity, rejectionsResp{Rejections: rejections})
		}

		return c.JSON(http.StatusCreated, map[string]string{"account_id": id})
	}
}

// NewDepositHandlerFunc creates the deposit endpoint
func NewDepositHandlerFunc(b *Backend) echo.HandlerFunc {
	return amountHandler(b, func(amount int) account.Command {
		return account.Deposit{Amount: amount}
	})
}

// NewWithdrawHandlerFunc creates the withdrawal endpoint
func NewWithdrawHandlerFunc(b *Backend) echo.HandlerFunc {
	return amountHandler(b, func(amount int) account.Command {
		return account.Withdraw{Amount: amount}
	})
}

func amountHandler(b *Backend, payload func(amount int) account.Command) echo.HandlerFunc {
	type req struct {
		Amount int `json:"amount"`
	}

	return func(c echo.Context) error {
		var r req

		if err := c.Bind(&r); err != nil {
			return c.NoContent(http.StatusBadRequest)
		}

		cmd := Command{
			ID:      commandID(c),
			Address: c.Param("id"),
			Payload: payload(r.Amount),
		}

		rejections, err := b.Process(c.Request().Context(), cmd)
		if err != nil {
			return err
		}

		if len(rejections) > 0 {
			return c.JSON(http.StatusUnprocessableEntity, rejectionsResp{Rejections: rejections})
		}

		return c.NoContent(http.StatusNoContent)
	}
}

// commandID uses the client supplied idempotency key when present so that
// resubmitted requests do not double-apply
func commandID(c echo.Context) string {
	if key := c.Request().Header.Get("Idempotency-Key"); key != "" {
		return key
	}

	return uuid.NewString()
}

package main

import (
	"errors"
	"net/http"
	"time"

	"bitbucket.org/mmdatafocus/ledger_backend/config"
	"bitbucket.org/mmdatafocus/ledger_backend/models"
	"bitbucket.org/mmdatafocus/ledger_backend/utils"
	"bitbucket.org/mmdatafocus/ledger_backend/workflow"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// bindJSON decodes the request body. Binding tag failures come back as a
// per-field map so the client sees which field tripped which rule.
func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(verrs)})
		} else {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		}
		return false
	}
	return true
}

// writeModelError maps the model layer's sentinel errors onto statuses.
func writeModelError(c *gin.Context, err error) {
	var ve *utils.ValidationError
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"errors": ve.Fields})
	case errors.Is(err, utils.ErrorRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, utils.ErrorMissingActor):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, utils.ErrorCreditLimitExceeded),
		errors.Is(err, utils.ErrorOverApplication),
		errors.Is(err, utils.ErrorImmutableDocument),
		errors.Is(err, utils.ErrorAlreadyVoid):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func createAccountHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.NewAccount
		if !bindJSON(c, &req) {
			return
		}
		account, err := models.CreateAccount(c.Request.Context(), &req)
		if err != nil {
			writeModelError(c, err)
			return
		}
		c.JSON(http.StatusCreated, account)
	}
}

func createItemHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.NewItem
		if !bindJSON(c, &req) {
			return
		}
		item, err := models.CreateItem(c.Request.Context(), &req)
		if err != nil {
			writeModelError(c, err)
			return
		}
		c.JSON(http.StatusCreated, item)
	}
}

func createInvoiceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.NewInvoice
		if !bindJSON(c, &req) {
			return
		}
		invoice, err := models.CreateInvoice(c.Request.Context(), &req)
		if err != nil {
			writeModelError(c, err)
			return
		}
		c.JSON(http.StatusCreated, invoice)
	}
}

func createBillHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.NewBill
		if !bindJSON(c, &req) {
			return
		}
		bill, err := models.CreateBill(c.Request.Context(), &req)
		if err != nil {
			writeModelError(c, err)
			return
		}
		c.JSON(http.StatusCreated, bill)
	}
}

func createPaymentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.NewPayment
		if !bindJSON(c, &req) {
			return
		}
		payment, err := models.CreatePayment(c.Request.Context(), &req)
		if err != nil {
			writeModelError(c, err)
			return
		}
		c.JSON(http.StatusCreated, payment)
	}
}

func createBillPaymentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.NewBillPayment
		if !bindJSON(c, &req) {
			return
		}
		payment, err := models.CreateBillPayment(c.Request.Context(), &req)
		if err != nil {
			writeModelError(c, err)
			return
		}
		c.JSON(http.StatusCreated, payment)
	}
}

func lowStockHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		items, err := models.FindLowStockItems(c.Request.Context())
		if err != nil {
			writeModelError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": items})
	}
}

type refreshStatusesRequest struct {
	AsOf string `json:"as_of"`
}

// refreshStatusesHandler runs the overdue sweep on demand, ahead of the
// daily ticker. as_of defaults to today.
func refreshStatusesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req refreshStatusesRequest
		// Body is optional for this ops endpoint.
		if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
			return
		}
		asOf := time.Now().UTC()
		if req.AsOf != "" {
			parsed, err := time.Parse("2006-01-02", req.AsOf)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid as_of"})
				return
			}
			asOf = parsed
		}
		updated, err := workflow.RefreshDocumentStatuses(c.Request.Context(), config.GetLogger(), asOf)
		if err != nil {
			writeModelError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"updated": updated})
	}
}

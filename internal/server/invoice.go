package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetInvoice issues the invoice for a generated period and returns its HTML.
func (s *Server) GetInvoice(c *gin.Context) {
	p, err := parsePeriod(c.Param("period"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	doc, err := s.invoiceSvc.IssueInvoice(c.Request.Context(), p)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("X-Invoice-Number", doc.Invoice.Number)
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(doc.HTML))
}

func (s *Server) GetInvoicePDF(c *gin.Context) {
	p, err := parsePeriod(c.Param("period"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	doc, err := s.invoiceSvc.IssueInvoice(ctx, p)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	out, err := s.invoiceSvc.Export(ctx, doc)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.Invoice.Number+".pdf"))
	c.Data(http.StatusOK, "application/pdf", out)
}

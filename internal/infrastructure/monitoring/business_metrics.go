package monitoring

import (
	"strconv"

	"github.com/yuzvak/crowdfund-service/internal/domain/crowdfund"
	domainErrors "github.com/yuzvak/crowdfund-service/internal/domain/errors"
)

type OperationMetrics struct {
	operation string
	stop      func()
}

func NewOperationMetrics(operation string) *OperationMetrics {
	return &OperationMetrics{
		operation: operation,
		stop:      TimeOperation(operation),
	}
}

func (m *OperationMetrics) RecordSuccess(resp *crowdfund.Response) {
	m.stop()
	RecordOperation(m.operation, "success")
	if resp == nil {
		return
	}

	if n, err := strconv.ParseUint(resp.Attribute("number_of_tokens_purchased"), 10, 64); err == nil {
		TokensPurchasedTotal.Add(float64(n))
	}

	switch action := resp.Attribute("action"); action {
	case "issue_refunds_and_burn_tokens", "transfer_tokens_and_send_funds":
		SettlementBatchesTotal.WithLabelValues(action).Inc()
		for _, msg := range resp.Messages {
			SettlementMessagesTotal.WithLabelValues(string(msg.Kind)).Inc()
		}
		if resp.Attribute("sale_cleared") == "true" {
			SalesClearedTotal.Inc()
		}
	}
}

// RecordFailure labels the failure with the error class so unexpected
// infrastructure errors stand out from ordinary rejections.
func (m *OperationMetrics) RecordFailure(err error) {
	m.stop()
	RecordOperation(m.operation, string(domainErrors.ClassOf(err)))
}

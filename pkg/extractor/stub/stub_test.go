package stub_test

import (
	"context"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/projectloop/mailgrouper/pkg/domain/interfaces"
	"github.com/projectloop/mailgrouper/pkg/domain/model"
	"github.com/projectloop/mailgrouper/pkg/extractor/stub"
)

func TestExtractFindsJobNumber(t *testing.T) {
	e := stub.New()
	msg := &model.Message{
		Headers: model.Headers{
			Subject: "RE: Smith Residence",
			From:    model.AddressPair{Name: "Jane Smith", Address: "jane@example.com"},
		},
		TextBody: "Please reference JOB-48213 on all invoices.",
	}

	entities, err := e.Extract(context.Background(), msg, interfaces.ExtractionHints{})
	gt.NoError(t, err).Required()
	gt.Array(t, entities.JobNumbers).Length(1)
	gt.Value(t, entities.JobNumbers[0].Value).Equal("48213")
	gt.Value(t, entities.ProjectName.Value).Equal("smith residence")
}

func TestCompareMatchesOnNormalizedSubject(t *testing.T) {
	e := stub.New()
	a := &model.Message{Headers: model.Headers{Subject: "Smith Residence"}}
	b := &model.Message{Headers: model.Headers{Subject: "RE: Smith Residence"}}

	result, err := e.Compare(context.Background(), a, b)
	gt.NoError(t, err).Required()
	gt.Bool(t, result.SameProject).True()
}

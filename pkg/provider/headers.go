package provider

import (
	"net/mail"
	"strings"

	"google.golang.org/api/gmail/v1"

	"github.com/projectloop/mailgrouper/pkg/domain/model"
)

// headerSet is a case-folded lookup over a flat header list, per spec
// §4.2 ("headers are case-folded for lookup"). Gmail hands back headers as
// an ordered []*MessagePartHeader rather than a map, so lookups here are
// linear — message header counts are small enough that this never matters.
type headerSet []*gmail.MessagePartHeader

func (h headerSet) get(name string) string {
	for _, kv := range h {
		if strings.EqualFold(kv.Name, name) {
			return kv.Value
		}
	}
	return ""
}

func parseAddress(raw string) model.AddressPair {
	if raw == "" {
		return model.AddressPair{}
	}
	addrs, err := mail.ParseAddressList(raw)
	if err != nil || len(addrs) == 0 {
		return model.AddressPair{Address: raw}
	}
	return model.AddressPair{Name: addrs[0].Name, Address: addrs[0].Address}
}

func parseAddressList(raw string) []model.AddressPair {
	if raw == "" {
		return nil
	}
	addrs, err := mail.ParseAddressList(raw)
	if err != nil {
		return []model.AddressPair{{Address: raw}}
	}
	out := make([]model.AddressPair, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, model.AddressPair{Name: a.Name, Address: a.Address})
	}
	return out
}

func parseHeaders(raw headerSet) model.Headers {
	date, _ := mail.ParseDate(raw.get("Date"))
	return model.Headers{
		From:    parseAddress(raw.get("From")),
		To:      parseAddressList(raw.get("To")),
		Cc:      parseAddressList(raw.get("Cc")),
		Bcc:     parseAddressList(raw.get("Bcc")),
		Subject: raw.get("Subject"),
		Date:    date.UTC(),
	}
}

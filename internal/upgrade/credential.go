package upgrade

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/hyperledger/aries-wallet-upgrade-go/internal/askarstore"
	"github.com/hyperledger/aries-wallet-upgrade-go/internal/walleterr"
)

var (
	schemaIDPattern  = regexp.MustCompile(`^(\w+):2:([^:]+):([^:]+)$`)
	credDefIDPattern = regexp.MustCompile(`^(\w+):3:CL:([^:]+):([^:]+)$`)
)

type credentialValue struct {
	SchemaID  string                     `json:"schema_id"`
	CredDefID string                     `json:"cred_def_id"`
	RevRegID  string                     `json:"rev_reg_id"`
	Values    map[string]credentialEntry `json:"values"`
}

type credentialEntry struct {
	Raw     string `json:"raw"`
	Encoded string `json:"encoded"`
}

// credentialTags implements the "Credential tag formula" of spec.md §4.5:
// both ID regexes must match or the record is MalformedId; rev_reg_id
// defaults to "None" when absent, matching the other defaulted fields.
func credentialTags(rawValue []byte) ([]askarstore.Tag, error) {
	var cred credentialValue
	if err := json.Unmarshal(rawValue, &cred); err != nil {
		return nil, walleterr.Wrap(walleterr.MalformedID, "credential: decode value json", err)
	}

	schemaMatch := schemaIDPattern.FindStringSubmatch(cred.SchemaID)
	if schemaMatch == nil {
		return nil, walleterr.New(walleterr.MalformedID, "credential: schema_id does not match expected pattern")
	}
	credDefMatch := credDefIDPattern.FindStringSubmatch(cred.CredDefID)
	if credDefMatch == nil {
		return nil, walleterr.New(walleterr.MalformedID, "credential: cred_def_id does not match expected pattern")
	}

	revRegID := cred.RevRegID
	if revRegID == "" {
		revRegID = "None"
	}

	tags := []askarstore.Tag{
		{Name: "schema_id", Value: defaultNone(cred.SchemaID), Plaintext: true},
		{Name: "schema_issuer_did", Value: defaultNone(schemaMatch[1]), Plaintext: true},
		{Name: "schema_name", Value: defaultNone(schemaMatch[2]), Plaintext: true},
		{Name: "schema_version", Value: defaultNone(schemaMatch[3]), Plaintext: true},
		{Name: "issuer_did", Value: defaultNone(credDefMatch[1]), Plaintext: true},
		{Name: "cred_def_id", Value: defaultNone(cred.CredDefID), Plaintext: true},
		{Name: "rev_reg_id", Value: revRegID, Plaintext: true},
	}

	for k, v := range cred.Values {
		stripped := strings.ReplaceAll(k, " ", "")
		tags = append(tags, askarstore.Tag{Name: "attr::" + stripped + "::value", Value: v.Raw, Plaintext: true})
	}

	return tags, nil
}

func defaultNone(s string) string {
	if s == "" {
		return "None"
	}
	return s
}

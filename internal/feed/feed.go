// Package feed reads the external inputs of the ledger from files: bank and
// acquirer statements, transfer confirmations and posting requests.
package feed

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/sheikh-saqib/gateway-ledger/internal/models"
)

type format int

const (
	formatJSON format = iota
	formatCSV
	formatYAML
)

func formatOf(path string) format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return formatCSV
	case ".yaml", ".yml":
		return formatYAML
	default:
		return formatJSON
	}
}

func open(path string, fn func(r io.Reader, f format) error) error {
	file, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer file.Close()
	return errors.Wrapf(fn(file, formatOf(path)), "read %s", path)
}

// LoadStatement reads statement rows from a .json, .yaml or .csv file.
func LoadStatement(path string) ([]models.StatementRow, error) {
	var rows []models.StatementRow
	err := open(path, func(r io.Reader, f format) error {
		var err error
		switch f {
		case formatCSV:
			rows, err = ParseStatementCSV(r)
		case formatYAML:
			err = yaml.NewDecoder(r).Decode(&rows)
		default:
			err = json.NewDecoder(r).Decode(&rows)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return rows, validateStatement(rows)
}

// LoadConfirmations reads transfer confirmations from a .json, .yaml or .csv file.
func LoadConfirmations(path string) ([]models.TransferConfirmation, error) {
	var confs []models.TransferConfirmation
	err := open(path, func(r io.Reader, f format) error {
		var err error
		switch f {
		case formatCSV:
			confs, err = ParseConfirmationsCSV(r)
		case formatYAML:
			err = yaml.NewDecoder(r).Decode(&confs)
		default:
			err = json.NewDecoder(r).Decode(&confs)
		}
		return err
	})
	return confs, err
}

// LoadWallets reads seller wallets from a .json or .yaml file.
func LoadWallets(path string) ([]models.Wallet, error) {
	var wallets []models.Wallet
	err := open(path, func(r io.Reader, f format) error {
		switch f {
		case formatCSV:
			return errors.New("csv is not supported for wallets")
		case formatYAML:
			return yaml.NewDecoder(r).Decode(&wallets)
		default:
			return json.NewDecoder(r).Decode(&wallets)
		}
	})
	if err != nil {
		return nil, err
	}
	for i, w := range wallets {
		if w.SellerID == "" {
			return nil, errors.Errorf("%s: wallet %d has no seller_id", path, i)
		}
	}
	return wallets, nil
}

// LoadPostingRequests reads one request or a list of requests from JSON or YAML.
func LoadPostingRequests(path string) ([]models.PostingRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}

	var reqs []models.PostingRequest
	if formatOf(path) == formatYAML {
		if err := yaml.Unmarshal(data, &reqs); err != nil {
			var one models.PostingRequest
			if err1 := yaml.Unmarshal(data, &one); err1 != nil {
				return nil, errors.Wrapf(err, "decode %s", path)
			}
			reqs = []models.PostingRequest{one}
		}
		return reqs, nil
	}

	if trimmed := strings.TrimSpace(string(data)); strings.HasPrefix(trimmed, "{") {
		var one models.PostingRequest
		if err := json.Unmarshal(data, &one); err != nil {
			return nil, errors.Wrapf(err, "decode %s", path)
		}
		return []models.PostingRequest{one}, nil
	}
	if err := json.Unmarshal(data, &reqs); err != nil {
		return nil, errors.Wrapf(err, "decode %s", path)
	}
	return reqs, nil
}

// ParseStatementCSV reads rows with header account,balance[,source].
func ParseStatementCSV(r io.Reader) ([]models.StatementRow, error) {
	records, cols, err := readCSV(r, "account", "balance")
	if err != nil {
		return nil, err
	}

	rows := make([]models.StatementRow, 0, len(records))
	for i, rec := range records {
		balance, err := decimal.NewFromString(strings.TrimSpace(rec[cols["balance"]]))
		if err != nil {
			return nil, errors.Wrapf(err, "line %d: balance", i+2)
		}
		row := models.StatementRow{Account: strings.TrimSpace(rec[cols["account"]]), Balance: balance}
		if c, ok := cols["source"]; ok {
			row.Source = models.StatementSource(strings.TrimSpace(rec[c]))
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ParseConfirmationsCSV reads confirmations with header
// reference,amount[,destination_account][,confirmed_at]. confirmed_at is RFC 3339.
func ParseConfirmationsCSV(r io.Reader) ([]models.TransferConfirmation, error) {
	records, cols, err := readCSV(r, "reference", "amount")
	if err != nil {
		return nil, err
	}

	confs := make([]models.TransferConfirmation, 0, len(records))
	for i, rec := range records {
		amount, err := decimal.NewFromString(strings.TrimSpace(rec[cols["amount"]]))
		if err != nil {
			return nil, errors.Wrapf(err, "line %d: amount", i+2)
		}
		conf := models.TransferConfirmation{Reference: strings.TrimSpace(rec[cols["reference"]]), Amount: amount}
		if c, ok := cols["destination_account"]; ok {
			conf.DestinationAccount = strings.TrimSpace(rec[c])
		}
		if c, ok := cols["confirmed_at"]; ok && strings.TrimSpace(rec[c]) != "" {
			t, err := time.Parse(time.RFC3339, strings.TrimSpace(rec[c]))
			if err != nil {
				return nil, errors.Wrapf(err, "line %d: confirmed_at", i+2)
			}
			conf.ConfirmedAt = t
		}
		confs = append(confs, conf)
	}
	return confs, nil
}

// readCSV returns the data records and the column index of each header name.
func readCSV(r io.Reader, required ...string) ([][]string, map[string]int, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	header, err := cr.Read()
	if err != nil {
		return nil, nil, errors.Wrap(err, "read header")
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, name := range required {
		if _, ok := cols[name]; !ok {
			return nil, nil, errors.Errorf("missing column %q", name)
		}
	}

	records, err := cr.ReadAll()
	if err != nil {
		return nil, nil, errors.Wrap(err, "read records")
	}
	return records, cols, nil
}

func validateStatement(rows []models.StatementRow) error {
	for i, row := range rows {
		if row.Account == "" {
			return errors.Errorf("statement row %d: account is required", i)
		}
		switch row.Source {
		case "", models.SourceBank, models.SourceAcquirer:
		default:
			return errors.Errorf("statement row %d: unknown source %q", i, row.Source)
		}
	}
	return nil
}

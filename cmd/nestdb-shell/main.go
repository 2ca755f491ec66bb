/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

/*
Package main is the interactive shell over the embedded NestDB engine.

The shell is a REPL: it reads a command, runs it through the executor
tier against the engine opened in-process, and prints the result.

Command Language:
=================

	CREATE TABLE users (id int, name string)
	CREATE INDEX idx_id ON users (id)
	INSERT INTO users VALUES (1, alice)
	SELECT FROM users [WHERE col op value] [LIMIT n]
	UPDATE users SET name = bob WHERE id = 1
	DELETE FROM users WHERE id = 1
	BEGIN | COMMIT | ABORT
	STATS
	\q | \help

Statements outside an explicit BEGIN run in their own repeatable-read
transaction that commits on success and is aborted on error (its locks
are released; writes it already applied are not undone). A lock
manager abort (deadlock, upgrade conflict) surfaces as an error and the
transaction is gone; re-run the statement.
*/
package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/chzyer/readline"
	"golang.org/x/term"

	"nestdb/internal/concurrency"
	"nestdb/internal/config"
	"nestdb/internal/engine"
	"nestdb/internal/execution"
	"nestdb/internal/storage/index"
	"nestdb/internal/storage/table"
)

// completions lists the completable keywords for tab completion.
var completions = []string{
	"\\q", "\\quit", "\\h", "\\help",
	"CREATE TABLE", "CREATE INDEX", "INSERT INTO", "SELECT FROM",
	"UPDATE", "DELETE FROM", "WHERE", "VALUES", "SET", "LIMIT", "ON",
	"BEGIN", "COMMIT", "ABORT", "STATS", "TABLES",
}

// session holds the REPL's transaction state.
type session struct {
	eng *engine.Engine
	txn *concurrency.Transaction // explicit transaction, nil in autocommit
}

func main() {
	mgr := config.Global()
	if err := mgr.Load(); err != nil {
		// Encryption without a passphrase is recoverable interactively.
		cfg := mgr.Get()
		if cfg.EncryptionEnabled && cfg.EncryptionPassphrase == "" && term.IsTerminal(int(os.Stdin.Fd())) {
			pass, perr := promptPassphrase()
			if perr != nil {
				fmt.Fprintln(os.Stderr, "nestdb:", err)
				os.Exit(1)
			}
			cfg.EncryptionPassphrase = pass
			mgr.Set(cfg)
		} else {
			fmt.Fprintln(os.Stderr, "nestdb:", err)
			os.Exit(1)
		}
	}
	cfg := mgr.Get()
	if err := os.MkdirAll(dirOf(cfg.DBPath), 0o700); err != nil {
		fmt.Fprintln(os.Stderr, "nestdb:", err)
		os.Exit(1)
	}

	eng, err := engine.Open(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "nestdb:", err)
		os.Exit(1)
	}
	defer eng.Close()

	rl, err := createReadlineInstance()
	if err != nil {
		fmt.Fprintln(os.Stderr, "nestdb:", err)
		os.Exit(1)
	}
	defer rl.Close()

	fmt.Printf("NestDB shell — %s\n", cfg.DBPath)
	fmt.Println("Type \\help for help, \\q to quit.")

	s := &session{eng: eng}
	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			break
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "\\q" || line == "\\quit" {
			break
		}
		if out, quit := s.execute(line); out != "" {
			fmt.Println(out)
			if quit {
				break
			}
		}
	}
	if s.txn != nil {
		eng.Abort(s.txn)
	}
}

func dirOf(path string) string {
	i := strings.LastIndexByte(path, '/')
	if i <= 0 {
		return "."
	}
	return path[:i]
}

// promptPassphrase reads the encryption passphrase without echo.
func promptPassphrase() (string, error) {
	fmt.Print("Encryption passphrase: ")
	pass, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(pass), nil
}

// createReadlineInstance configures the line editor.
func createReadlineInstance() (*readline.Instance, error) {
	items := make([]readline.PrefixCompleterInterface, 0, len(completions))
	for _, c := range completions {
		items = append(items, readline.PcItem(c))
	}
	home, _ := os.UserHomeDir()
	historyFile := ""
	if home != "" {
		historyFile = home + "/.nestdb_history"
	}
	return readline.NewEx(&readline.Config{
		Prompt:            "nestdb> ",
		HistoryFile:       historyFile,
		AutoComplete:      readline.NewPrefixCompleter(items...),
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
}

// currentTxn returns the statement's transaction and whether it is
// autocommit-scoped.
func (s *session) currentTxn() (*concurrency.Transaction, bool) {
	if s.txn != nil {
		return s.txn, false
	}
	return s.eng.Begin(concurrency.RepeatableRead), true
}

// finish commits or aborts an autocommit transaction.
func (s *session) finish(txn *concurrency.Transaction, auto bool, err error) {
	if !auto {
		if err != nil && txn.State() == concurrency.Aborted {
			// The lock manager already killed the explicit transaction.
			s.eng.Abort(txn)
			s.txn = nil
		}
		return
	}
	if err != nil {
		s.eng.Abort(txn)
	} else {
		s.eng.Commit(txn)
	}
}

// execute runs one command line.
func (s *session) execute(line string) (string, bool) {
	upper := strings.ToUpper(line)
	switch {
	case line == "\\h" || line == "\\help":
		return helpText, false
	case upper == "STATS":
		return s.eng.Metrics().String(), false
	case upper == "TABLES":
		return strings.Join(s.eng.Catalog().TableNames(), "\n"), false
	case upper == "BEGIN":
		if s.txn != nil {
			return "ERROR: transaction already open", false
		}
		s.txn = s.eng.Begin(concurrency.RepeatableRead)
		return fmt.Sprintf("BEGIN (txn %d)", s.txn.ID()), false
	case upper == "COMMIT":
		if s.txn == nil {
			return "ERROR: no open transaction", false
		}
		s.eng.Commit(s.txn)
		s.txn = nil
		return "COMMIT", false
	case upper == "ABORT" || upper == "ROLLBACK":
		if s.txn == nil {
			return "ERROR: no open transaction", false
		}
		s.eng.Abort(s.txn)
		s.txn = nil
		return "ABORT", false
	}

	out, err := s.runStatement(line)
	if err != nil {
		return "ERROR: " + err.Error(), false
	}
	return out, false
}

// runStatement parses and executes a data statement.
func (s *session) runStatement(line string) (string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil
	}
	switch strings.ToUpper(fields[0]) {
	case "CREATE":
		return s.runCreate(line, fields)
	case "INSERT":
		return s.runInsert(line)
	case "SELECT":
		return s.runSelect(line)
	case "UPDATE":
		return s.runUpdate(line)
	case "DELETE":
		return s.runDelete(line)
	default:
		return "", fmt.Errorf("unknown command %q (try \\help)", fields[0])
	}
}

// parenBody extracts the text between the first '(' and the last ')'.
func parenBody(line string) (string, error) {
	open := strings.Index(line, "(")
	close := strings.LastIndex(line, ")")
	if open < 0 || close < open {
		return "", fmt.Errorf("expected a parenthesized list")
	}
	return line[open+1 : close], nil
}

func (s *session) runCreate(line string, fields []string) (string, error) {
	if len(fields) < 3 {
		return "", fmt.Errorf("CREATE TABLE or CREATE INDEX expected")
	}
	switch strings.ToUpper(fields[1]) {
	case "TABLE":
		name := fields[2]
		body, err := parenBody(line)
		if err != nil {
			return "", err
		}
		var cols []table.Column
		for _, spec := range strings.Split(body, ",") {
			parts := strings.Fields(strings.ReplaceAll(spec, ":", " "))
			if len(parts) != 2 {
				return "", fmt.Errorf("bad column spec %q (want name type)", strings.TrimSpace(spec))
			}
			var vt table.ValueType
			switch strings.ToLower(parts[1]) {
			case "int", "int64", "integer":
				vt = table.TypeInt64
			case "string", "text", "varchar":
				vt = table.TypeString
			default:
				return "", fmt.Errorf("unknown type %q", parts[1])
			}
			cols = append(cols, table.Column{Name: parts[0], Type: vt})
		}
		txn, auto := s.currentTxn()
		_, err = s.eng.Catalog().CreateTable(name, table.NewSchema(cols...), txn)
		s.finish(txn, auto, err)
		if err != nil {
			return "", err
		}
		return "CREATE TABLE", nil

	case "INDEX":
		// CREATE INDEX name ON table (col)
		if len(fields) < 5 || strings.ToUpper(fields[3]) != "ON" {
			return "", fmt.Errorf("CREATE INDEX name ON table (col)")
		}
		idxName, tblName := fields[2], fields[4]
		body, err := parenBody(line)
		if err != nil {
			return "", err
		}
		meta, err := s.eng.Catalog().GetTable(tblName)
		if err != nil {
			return "", err
		}
		col := meta.Schema.ColumnIndex(strings.TrimSpace(body))
		if col < 0 {
			return "", fmt.Errorf("unknown column %q", strings.TrimSpace(body))
		}
		var cmp index.KeyComparator = index.Int64Comparator{}
		if meta.Schema.Columns[col].Type == table.TypeString {
			cmp = index.BinaryComparator{}
		}
		txn, auto := s.currentTxn()
		_, err = s.eng.Catalog().CreateIndex(idxName, tblName, col, cmp, 0, 0, txn)
		s.finish(txn, auto, err)
		if err != nil {
			return "", err
		}
		return "CREATE INDEX", nil
	}
	return "", fmt.Errorf("CREATE TABLE or CREATE INDEX expected")
}

// parseValue converts a literal to a typed cell.
func parseValue(raw string, vt table.ValueType) (table.Value, error) {
	raw = strings.TrimSpace(strings.Trim(strings.TrimSpace(raw), `'"`))
	if vt == table.TypeInt64 {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return table.Value{}, fmt.Errorf("not an integer: %q", raw)
		}
		return table.IntValue(n), nil
	}
	return table.StringValue(raw), nil
}

func (s *session) runInsert(line string) (string, error) {
	// INSERT INTO table VALUES (v1, v2, ...)
	fields := strings.Fields(line)
	if len(fields) < 4 || strings.ToUpper(fields[1]) != "INTO" {
		return "", fmt.Errorf("INSERT INTO table VALUES (...)")
	}
	tblName := fields[2]
	meta, err := s.eng.Catalog().GetTable(tblName)
	if err != nil {
		return "", err
	}
	body, err := parenBody(line)
	if err != nil {
		return "", err
	}
	raws := strings.Split(body, ",")
	if len(raws) != len(meta.Schema.Columns) {
		return "", fmt.Errorf("expected %d values, got %d", len(meta.Schema.Columns), len(raws))
	}
	values := make([]table.Value, len(raws))
	for i, raw := range raws {
		values[i], err = parseValue(raw, meta.Schema.Columns[i].Type)
		if err != nil {
			return "", err
		}
	}

	txn, auto := s.currentTxn()
	ctx := s.execCtx(txn)
	exec := execution.NewInsertExecutor(ctx, &execution.InsertPlan{
		TableName: tblName,
		RawValues: []table.Tuple{table.NewTuple(values...)},
	})
	err = runToEnd(exec)
	s.finish(txn, auto, err)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("INSERT %d", exec.Inserted), nil
}

// parseWhere builds a predicate from "WHERE col op value", if present.
func parseWhere(line string, schema *table.Schema) (execution.Expression, error) {
	idx := strings.Index(strings.ToUpper(line), " WHERE ")
	if idx < 0 {
		return nil, nil
	}
	clause := strings.TrimSpace(line[idx+len(" WHERE "):])
	if cut := strings.Index(strings.ToUpper(clause), " LIMIT "); cut >= 0 {
		clause = strings.TrimSpace(clause[:cut])
	}
	var op execution.CompareOp
	var opStr string
	for _, cand := range []struct {
		s  string
		op execution.CompareOp
	}{{"!=", execution.CmpNe}, {"<=", execution.CmpLe}, {">=", execution.CmpGe},
		{"=", execution.CmpEq}, {"<", execution.CmpLt}, {">", execution.CmpGt}} {
		if strings.Contains(clause, cand.s) {
			op, opStr = cand.op, cand.s
			break
		}
	}
	if opStr == "" {
		return nil, fmt.Errorf("unsupported WHERE clause %q", clause)
	}
	parts := strings.SplitN(clause, opStr, 2)
	colName := strings.TrimSpace(parts[0])
	col := schema.ColumnIndex(colName)
	if col < 0 {
		return nil, fmt.Errorf("unknown column %q", colName)
	}
	val, err := parseValue(parts[1], schema.Columns[col].Type)
	if err != nil {
		return nil, err
	}
	return execution.Compare(op, execution.Column(col), execution.Constant(val)), nil
}

// parseLimit extracts a trailing LIMIT n.
func parseLimit(line string) (int, bool, error) {
	idx := strings.Index(strings.ToUpper(line), " LIMIT ")
	if idx < 0 {
		return 0, false, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(line[idx+len(" LIMIT "):]))
	if err != nil {
		return 0, false, fmt.Errorf("bad LIMIT")
	}
	return n, true, nil
}

func (s *session) runSelect(line string) (string, error) {
	// SELECT FROM table [WHERE ...] [LIMIT n]   ("*" tolerated)
	fields := strings.Fields(line)
	pos := 1
	if pos < len(fields) && fields[pos] == "*" {
		pos++
	}
	if pos+1 >= len(fields) || strings.ToUpper(fields[pos]) != "FROM" {
		return "", fmt.Errorf("SELECT FROM table [WHERE col op value] [LIMIT n]")
	}
	tblName := fields[pos+1]
	meta, err := s.eng.Catalog().GetTable(tblName)
	if err != nil {
		return "", err
	}
	pred, err := parseWhere(line, meta.Schema)
	if err != nil {
		return "", err
	}
	limit, hasLimit, err := parseLimit(line)
	if err != nil {
		return "", err
	}

	txn, auto := s.currentTxn()
	ctx := s.execCtx(txn)
	var exec execution.Executor = execution.NewSeqScanExecutor(ctx, &execution.SeqScanPlan{
		TableName: tblName,
		Predicate: pred,
	})
	if hasLimit {
		exec = execution.NewLimitExecutor(ctx, &execution.LimitPlan{Limit: limit, Child: exec})
	}

	var sb strings.Builder
	header := make([]string, len(meta.Schema.Columns))
	for i, c := range meta.Schema.Columns {
		header[i] = c.Name
	}
	sb.WriteString(strings.Join(header, " | "))

	count := 0
	err = func() error {
		if err := exec.Init(); err != nil {
			return err
		}
		for {
			t, _, ok, err := exec.Next()
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			cells := make([]string, len(t.Values))
			for i, v := range t.Values {
				cells[i] = v.String()
			}
			sb.WriteString("\n" + strings.Join(cells, " | "))
			count++
		}
	}()
	s.finish(txn, auto, err)
	if err != nil {
		return "", err
	}
	sb.WriteString(fmt.Sprintf("\n(%d rows)", count))
	return sb.String(), nil
}

func (s *session) runUpdate(line string) (string, error) {
	// UPDATE table SET col = value [WHERE ...]
	fields := strings.Fields(line)
	if len(fields) < 4 || strings.ToUpper(fields[2]) != "SET" {
		return "", fmt.Errorf("UPDATE table SET col = value [WHERE ...]")
	}
	tblName := fields[1]
	meta, err := s.eng.Catalog().GetTable(tblName)
	if err != nil {
		return "", err
	}

	setIdx := strings.Index(strings.ToUpper(line), " SET ")
	rest := line[setIdx+len(" SET "):]
	if cut := strings.Index(strings.ToUpper(rest), " WHERE "); cut >= 0 {
		rest = rest[:cut]
	}
	setCols := make(map[int]execution.Expression)
	for _, assign := range strings.Split(rest, ",") {
		parts := strings.SplitN(assign, "=", 2)
		if len(parts) != 2 {
			return "", fmt.Errorf("bad assignment %q", strings.TrimSpace(assign))
		}
		col := meta.Schema.ColumnIndex(strings.TrimSpace(parts[0]))
		if col < 0 {
			return "", fmt.Errorf("unknown column %q", strings.TrimSpace(parts[0]))
		}
		val, err := parseValue(parts[1], meta.Schema.Columns[col].Type)
		if err != nil {
			return "", err
		}
		setCols[col] = execution.Constant(val)
	}
	pred, err := parseWhere(line, meta.Schema)
	if err != nil {
		return "", err
	}

	txn, auto := s.currentTxn()
	ctx := s.execCtx(txn)
	scan := execution.NewSeqScanExecutor(ctx, &execution.SeqScanPlan{TableName: tblName, Predicate: pred})
	exec := execution.NewUpdateExecutor(ctx, &execution.UpdatePlan{
		TableName:  tblName,
		SetColumns: setCols,
		Child:      scan,
	})
	err = runToEnd(exec)
	s.finish(txn, auto, err)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("UPDATE %d", exec.Updated), nil
}

func (s *session) runDelete(line string) (string, error) {
	// DELETE FROM table [WHERE ...]
	fields := strings.Fields(line)
	if len(fields) < 3 || strings.ToUpper(fields[1]) != "FROM" {
		return "", fmt.Errorf("DELETE FROM table [WHERE ...]")
	}
	tblName := fields[2]
	meta, err := s.eng.Catalog().GetTable(tblName)
	if err != nil {
		return "", err
	}
	pred, err := parseWhere(line, meta.Schema)
	if err != nil {
		return "", err
	}

	txn, auto := s.currentTxn()
	ctx := s.execCtx(txn)
	scan := execution.NewSeqScanExecutor(ctx, &execution.SeqScanPlan{TableName: tblName, Predicate: pred})
	exec := execution.NewDeleteExecutor(ctx, &execution.DeletePlan{TableName: tblName, Child: scan})
	err = runToEnd(exec)
	s.finish(txn, auto, err)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("DELETE %d", exec.Deleted), nil
}

// execCtx bundles the engine components for one statement.
func (s *session) execCtx(txn *concurrency.Transaction) *execution.ExecutorContext {
	return execution.NewExecutorContext(txn, s.eng.Catalog(), s.eng.BufferPool(),
		s.eng.LockManager(), s.eng.TxnManager())
}

// runToEnd drives an executor to exhaustion.
func runToEnd(exec execution.Executor) error {
	if err := exec.Init(); err != nil {
		return err
	}
	for {
		_, _, ok, err := exec.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}
}

const helpText = `Commands:
  CREATE TABLE name (col type, ...)     column types: int, string
  CREATE INDEX name ON table (col)
  INSERT INTO table VALUES (v1, ...)
  SELECT FROM table [WHERE col op v] [LIMIT n]
  UPDATE table SET col = v [WHERE ...]
  DELETE FROM table [WHERE ...]
  BEGIN / COMMIT / ABORT                explicit transaction control
  TABLES                                list tables
  STATS                                 engine counters
  \q                                    quit`

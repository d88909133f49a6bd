package expiry

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestContractCode(t *testing.T) {
	code, err := ContractCode("wti", 2025, time.February)
	require.NoError(t, err)
	assert.Equal(t, "CLG25", code)

	code, err = ContractCode("brent", 2030, time.December)
	require.NoError(t, err)
	assert.Equal(t, "BZZ30", code)

	_, err = ContractCode("gold", 2025, time.January)
	assert.Error(t, err)
}

func TestGenerate_Rules(t *testing.T) {
	cal := Generate(date(2025, 1, 10), 2, 3)

	byCode := make(map[string]Contract)
	for _, c := range cal.Contracts() {
		byCode[c.ContractCode] = c
	}

	// two months back through three ahead, two markets
	assert.Len(t, byCode, 12)

	wti, ok := byCode["CLG25"]
	require.True(t, ok)
	// Jan 25 2025 is a Saturday; three business days back is Wed Jan 22
	assert.Equal(t, date(2025, 1, 22), wti.ExpiryDate)
	assert.Equal(t, "NYMEX", wti.Exchange)
	assert.Equal(t, "2025-02", wti.DeliveryMonth)
	assert.Equal(t, "WTI", wti.Symbol)

	brent, ok := byCode["BZH25"]
	require.True(t, ok)
	assert.Equal(t, date(2025, 1, 31), brent.ExpiryDate)
	assert.Equal(t, "ICE", brent.Exchange)

	_, ok = byCode["CLV24"]
	assert.False(t, ok, "should start two months back")
	_, ok = byCode["CLX24"]
	assert.True(t, ok)

	wider := Generate(date(2025, 1, 10), 4, 3)
	assert.Len(t, wider.Contracts(), 16)
	assert.Equal(t, "CLU24", wider.ForMarket("wti")[0].ContractCode)
}

func TestMonthsBackFor(t *testing.T) {
	assert.Equal(t, 2, MonthsBackFor(0))
	assert.Equal(t, 2, MonthsBackFor(-5))
	assert.Equal(t, 3, MonthsBackFor(28))
	assert.Equal(t, 28, MonthsBackFor(730))
}

func TestGenerate_CoversIngestWindow(t *testing.T) {
	today := date(2026, 10, 18)
	oldest := date(2024, 11, 17)

	short := Generate(today, 2, 18)
	assert.Equal(t, date(2026, 7, 22), short.ForMarket("wti")[0].ExpiryDate)
	_, ok := short.DaysToExpiry("wti", oldest)
	assert.False(t, ok, "row older than the first expiry is not covered")
	assert.False(t, short.Covers("wti", oldest, today))

	full := Generate(today, MonthsBackFor(730), 18)
	front, ok := full.FrontContract("wti", oldest)
	require.True(t, ok)
	assert.Equal(t, "CLZ24", front.ContractCode)

	days, ok := full.DaysToExpiry("wti", oldest)
	require.True(t, ok)
	// Nov 25 2024 is a Monday; three business days back is Wed Nov 20
	assert.Equal(t, 3, days)

	for _, mkt := range []string{"wti", "brent"} {
		assert.True(t, full.Covers(mkt, oldest, today), mkt)
	}
}

func TestGenerate_SortedByExpiry(t *testing.T) {
	contracts := Generate(date(2025, 6, 1), 2, 12).Contracts()
	for i := 1; i < len(contracts); i++ {
		assert.False(t, contracts[i].ExpiryDate.Before(contracts[i-1].ExpiryDate))
	}
}

func testCalendar() *Calendar {
	return New([]Contract{
		{Symbol: "WTI", ContractCode: "CLH25", ExpiryDate: date(2025, 2, 20), Exchange: "NYMEX", DeliveryMonth: "2025-03"},
		{Symbol: "WTI", ContractCode: "CLG25", ExpiryDate: date(2025, 1, 21), Exchange: "NYMEX", DeliveryMonth: "2025-02"},
		{Symbol: "Brent", ContractCode: "BZH25", ExpiryDate: date(2025, 1, 31), Exchange: "ICE", DeliveryMonth: "2025-03"},
	})
}

func coveredCalendar() *Calendar {
	return New(append(testCalendar().Contracts(),
		Contract{Symbol: "WTI", ContractCode: "CLF25", ExpiryDate: date(2024, 12, 19), Exchange: "NYMEX", DeliveryMonth: "2025-01"},
		Contract{Symbol: "Brent", ContractCode: "BZG25", ExpiryDate: date(2024, 12, 31), Exchange: "ICE", DeliveryMonth: "2025-02"},
	))
}

func TestFrontContractAndDays(t *testing.T) {
	cal := coveredCalendar()

	front, ok := cal.FrontContract("wti", date(2025, 1, 10))
	require.True(t, ok)
	assert.Equal(t, "CLG25", front.ContractCode)

	days, ok := cal.DaysToExpiry("wti", date(2025, 1, 10))
	require.True(t, ok)
	assert.Equal(t, 11, days)

	days, ok = cal.DaysToExpiry("wti", date(2025, 1, 21))
	require.True(t, ok)
	assert.Equal(t, 0, days, "expiry day itself")

	front, ok = cal.FrontContract("wti", date(2025, 1, 22))
	require.True(t, ok)
	assert.Equal(t, "CLH25", front.ContractCode)

	days, ok = cal.DaysToExpiry("BRENT", date(2025, 1, 30))
	require.True(t, ok)
	assert.Equal(t, 1, days)

	_, ok = cal.DaysToExpiry("wti", date(2025, 3, 1))
	assert.False(t, ok)
}

func TestFrontContract_BeforeFirstExpiry(t *testing.T) {
	cal := coveredCalendar()

	_, ok := cal.FrontContract("wti", date(2024, 6, 3))
	assert.False(t, ok)

	_, ok = cal.DaysToExpiry("wti", date(2024, 12, 19))
	assert.False(t, ok, "first listed expiry day is not covered")

	front, ok := cal.FrontContract("wti", date(2024, 12, 20))
	require.True(t, ok)
	assert.Equal(t, "CLG25", front.ContractCode)

	_, ok = cal.FrontContract("gold", date(2025, 1, 10))
	assert.False(t, ok)
}

func TestCSVRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, testCalendar().Write(&buf))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "symbol,contract_code,expiry_date,exchange,delivery_month", lines[0])
	assert.Equal(t, "WTI,CLG25,2025-01-21,NYMEX,2025-02", lines[1])

	back, err := Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, testCalendar().Contracts(), back.Contracts())
}

func TestRead_Errors(t *testing.T) {
	_, err := Read(strings.NewReader("symbol,contract_code\nWTI,CLG25\n"))
	assert.ErrorContains(t, err, "missing column")

	_, err = Read(strings.NewReader("symbol,contract_code,expiry_date,exchange,delivery_month\nWTI,CLG25,01/21/2025,NYMEX,2025-02\n"))
	assert.ErrorContains(t, err, "line 2")
}

func TestOpen_GeneratesWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calendar", "contracts.csv")

	cal, err := Open(path, 2, 6, zap.NewNop())
	require.NoError(t, err)
	assert.NotEmpty(t, cal.Contracts())

	_, err = os.Stat(path)
	require.NoError(t, err)

	again, err := Open(path, 2, 6, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, len(cal.Contracts()), len(again.Contracts()))
}

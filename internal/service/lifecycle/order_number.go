package lifecycle

import (
	"fmt"
	"hash/fnv"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// OrderNumberGenerator выдаёт человекочитаемые номера вида ORD-<ms>-<random>-<process>.
type OrderNumberGenerator struct {
	process string
	now     func() time.Time
}

// NewOrderNumberGenerator вычисляет дискриминатор процесса из hostname и pid.
func NewOrderNumberGenerator() *OrderNumberGenerator {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return &OrderNumberGenerator{
		process: processDiscriminator(host, os.Getpid()),
		now:     time.Now,
	}
}

func processDiscriminator(host string, pid int) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(host))
	return strconv.FormatUint(uint64(h.Sum32()), 36) + strconv.FormatInt(int64(pid), 36)
}

// Next возвращает новый номер.
func (g *OrderNumberGenerator) Next() string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return strings.ToUpper(fmt.Sprintf("ORD-%d-%s-%s", g.now().UnixMilli(), random, g.process))
}

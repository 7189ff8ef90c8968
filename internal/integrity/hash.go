package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Доменные префиксы для разделения хешей разных типов содержимого.
// Суффикс версии позволяет в будущем сменить алгоритм без коллизий.
const (
	// DomainRecord — контент-хеш финансовой записи (сравнение при equal clocks).
	DomainRecord = "finkeeper/record/v1"
	// DomainSnapshot — хеш целостности состояния в снапшоте.
	DomainSnapshot = "finkeeper/snapshot/v1"
)

// HashWithDomain вычисляет SHA-256 с доменным разделением.
// Формат: SHA256(domain + 0x00 + data). Нулевой байт исключает
// неоднозначность границы домен/данные.
func HashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// HashCanonical канонически сериализует значение и хеширует его
// с доменным разделением. Хеш стабилен между перезапусками процесса
// и не зависит от порядка ключей в map.
func HashCanonical(domain string, v any) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal canonical form: %w", err)
	}
	return HashWithDomain(domain, canonical), nil
}

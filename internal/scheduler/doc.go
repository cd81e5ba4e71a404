// Package scheduler периодически обслуживает каталог заказов.
//
// Sweeper по cron-расписанию:
//   - Завершает заказы, все продукты которых в финальном статусе
//   - Сообщает о просроченных заказах (один раз на заказ)
//   - Обновляет метрики заказов
//
// Использование:
//
//	sweeper, err := scheduler.New(scheduler.Config{
//	    Directory: dir,
//	    Schedule:  "@every 5s",
//	    Logger:    logger,
//	})
//	if err != nil {
//	    return err
//	}
//	sweeper.Start()
//	defer sweeper.Stop()
//
// Tick можно вызывать напрямую: он синхронный и идемпотентный.
package scheduler

// Package tasks — встроенные виды задач ML-конвейера.
//
// LIGHTWEIGHT виды (load_dataset, load_config, load_lora,
// artifact_check) выполняются в процессе оркестратора: они только
// резолвят ссылки и выдают идентификаторы артефактов. ISOLATED виды
// (finetune, ptq, evaluate) — тяжёлая работа, уезжающая в runner
// через очередь.
//
// Ядро не интерпретирует содержимое артефактов: обработчики оперируют
// идентификаторами, реальное хранилище байтов — забота исполнителя.
package tasks
